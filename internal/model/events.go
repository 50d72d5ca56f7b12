// Package model defines the model-invocation contract: the instance
// interface providers implement, the typed events they stream while
// generating, and the background collector that reconciles usage before a
// response is finalized.
package model

import (
	"encoding/json"
	"time"
)

// EventType identifies a streamed model event.
type EventType string

const (
	EventTypeLLMStart   EventType = "llm_start"
	EventTypeLLMContent EventType = "llm_content"
	EventTypeLLMFinish  EventType = "llm_finish"
	EventTypeToolStart  EventType = "tool_start"
)

// Event is a single item in a model's event stream. Content is set for
// llm_content deltas; Finish and ToolStart carry the payloads of their
// respective event types.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Content   string          `json:"content,omitempty"`
	Finish    *FinishEvent    `json:"finish,omitempty"`
	ToolStart *ToolStartEvent `json:"tool_start,omitempty"`
}

// Usage is the raw provider-reported token accounting for one invocation.
type Usage struct {
	InputTokens             int             `json:"input_tokens"`
	OutputTokens            int             `json:"output_tokens"`
	TotalTokens             int             `json:"total_tokens"`
	PromptTokensDetails     json.RawMessage `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails json.RawMessage `json:"completion_tokens_details,omitempty"`
	IsCacheUsed             bool            `json:"is_cache_used"`
}

// FinishEvent is emitted once, when the model stops producing output.
type FinishEvent struct {
	ModelName    string `json:"model_name"`
	FinishReason string `json:"finish_reason"`
	Usage        *Usage `json:"usage,omitempty"`
}

// ToolStartEvent is emitted when the model begins requesting a tool call.
type ToolStartEvent struct {
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id"`
}

// ContentEvent builds an llm_content delta event.
func ContentEvent(delta string) Event {
	return Event{Type: EventTypeLLMContent, Timestamp: time.Now().UTC(), Content: delta}
}

// StartEvent builds an llm_start event.
func StartEvent() Event {
	return Event{Type: EventTypeLLMStart, Timestamp: time.Now().UTC()}
}

// FinishedEvent builds an llm_finish event.
func FinishedEvent(finish FinishEvent) Event {
	return Event{Type: EventTypeLLMFinish, Timestamp: time.Now().UTC(), Finish: &finish}
}

// ToolStartedEvent builds a tool_start event.
func ToolStartedEvent(ts ToolStartEvent) Event {
	return Event{Type: EventTypeToolStart, Timestamp: time.Now().UTC(), ToolStart: &ts}
}
