package types

import "encoding/json"

// ToolCall is a completed tool invocation request produced by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall is the function portion of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatCompletionRequest is the inbound completion request.
type ChatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []ChatCompletionMessage `json:"messages"`
	Stream      bool                    `json:"stream,omitempty"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
	Temperature *float32                `json:"temperature,omitempty"`
	ThreadID    *string                 `json:"thread_id,omitempty"`
	User        string                  `json:"user,omitempty"`
}

// ChatCompletionMessage is a single chat message. Content is nil when the
// model produced tool calls without any content.
type ChatCompletionMessage struct {
	Role       string        `json:"role"`
	Content    *InnerMessage `json:"content"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// ChatCompletionUsage is the response-facing usage summary. Cost is
// always 0 here; pricing happens elsewhere.
type ChatCompletionUsage struct {
	PromptTokens            int             `json:"prompt_tokens"`
	CompletionTokens        int             `json:"completion_tokens"`
	TotalTokens             int             `json:"total_tokens"`
	PromptTokensDetails     json.RawMessage `json:"prompt_tokens_details"`
	CompletionTokensDetails json.RawMessage `json:"completion_tokens_details"`
	Cost                    float64         `json:"cost"`
}

// ChatCompletionChoice is a single completion choice.
type ChatCompletionChoice struct {
	Index        int                   `json:"index"`
	Message      ChatCompletionMessage `json:"message"`
	FinishReason *string               `json:"finish_reason"`
}

// ChatCompletionResponse is the finalized client-facing response.
type ChatCompletionResponse struct {
	ID          string                 `json:"id"`
	Object      string                 `json:"object"`
	Created     int64                  `json:"created"`
	Model       string                 `json:"model"`
	Choices     []ChatCompletionChoice `json:"choices"`
	Usage       ChatCompletionUsage    `json:"usage"`
	IsCacheUsed *bool                  `json:"is_cache_used"`
}

// Model describes a model entry exposed via the models listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
	Created int64  `json:"created,omitempty"`
}

// ModelList is the models listing response.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
