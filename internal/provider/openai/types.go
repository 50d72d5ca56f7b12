package openai

import "encoding/json"

// apiMessage is a chat message in the upstream request.
type apiMessage struct {
	Role       string        `json:"role"`
	Content    any           `json:"content"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
}

// apiContentPart is one element of a multimodal content array.
type apiContentPart struct {
	Type       string         `json:"type"`
	Text       string         `json:"text,omitempty"`
	ImageURL   *apiImageURL   `json:"image_url,omitempty"`
	InputAudio *apiInputAudio `json:"input_audio,omitempty"`
}

type apiImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type apiInputAudio struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

type apiToolCall struct {
	Index    int             `json:"index,omitempty"`
	ID       string          `json:"id,omitempty"`
	Type     string          `json:"type,omitempty"`
	Function apiFunctionCall `json:"function"`
}

type apiFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// chatRequest is the upstream chat completions request body.
type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []apiMessage   `json:"messages"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
	MaxTokens     int            `json:"max_completion_tokens,omitempty"`
	Temperature   *float32       `json:"temperature,omitempty"`
	User          string         `json:"user,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatChunk is one SSE chunk of a streamed completion.
type chatChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
	Usage   *apiUsage     `json:"usage,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Role      string        `json:"role,omitempty"`
	Content   *string       `json:"content,omitempty"`
	ToolCalls []apiToolCall `json:"tool_calls,omitempty"`
}

type apiUsage struct {
	PromptTokens            int             `json:"prompt_tokens"`
	CompletionTokens        int             `json:"completion_tokens"`
	TotalTokens             int             `json:"total_tokens"`
	PromptTokensDetails     json.RawMessage `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails json.RawMessage `json:"completion_tokens_details,omitempty"`
}

// promptTokensDetails is the subset of the prompt detail we inspect for
// the cache-hit flag; the raw detail is passed through untouched.
type promptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// modelList is the upstream models listing.
type modelList struct {
	Object string     `json:"object"`
	Data   []apiModel `json:"data"`
}

type apiModel struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
	Created int64  `json:"created"`
}

// apiError is the upstream error envelope.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}
