package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/duonganhthu43/ai-gateway/internal/model"
	"github.com/duonganhthu43/ai-gateway/internal/tokens"
	"github.com/duonganhthu43/ai-gateway/internal/types"
)

// Instance is an OpenAI-backed model instance for a single model name.
type Instance struct {
	client      *Client
	modelName   string
	counter     tokens.Counter
	maxTokens   int
	temperature *float32
}

// InstanceOption configures an instance.
type InstanceOption func(*Instance)

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) InstanceOption {
	return func(i *Instance) {
		i.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) InstanceOption {
	return func(i *Instance) {
		i.temperature = &t
	}
}

// NewInstance creates an instance for modelName. counter is used to
// estimate usage when the upstream stream reports none; it may be nil.
func NewInstance(client *Client, modelName string, counter tokens.Counter, opts ...InstanceOption) *Instance {
	i := &Instance{
		client:    client,
		modelName: modelName,
		counter:   counter,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke streams one completion, emitting model events as chunks arrive
// and returning the final assembled message.
func (i *Instance) Invoke(ctx context.Context, inputs map[string]any, events chan<- model.Event, history []types.Message, tags map[string]string) (*model.InvocationResult, error) {
	req := &chatRequest{
		Model:       i.modelName,
		Messages:    toAPIMessages(history),
		MaxTokens:   i.maxTokens,
		Temperature: i.temperature,
	}
	if user, ok := inputs["user"].(string); ok {
		req.User = user
	}
	if n, ok := inputs["max_tokens"].(int); ok && n > 0 {
		req.MaxTokens = n
	}
	if t, ok := inputs["temperature"].(float32); ok {
		req.Temperature = &t
	}

	stream, err := i.client.streamChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := send(ctx, events, model.StartEvent()); err != nil {
		return nil, err
	}

	var (
		content      strings.Builder
		sawContent   bool
		finishReason string
		usage        *model.Usage
		calls        []types.ToolCall
		callIndex    = map[int]int{} // chunk tool-call index -> calls slice index
	)

	for result := range stream {
		if result.Err != nil {
			return nil, result.Err
		}
		chunk := result.Chunk

		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]
			if choice.Delta.Content != nil {
				sawContent = true
				content.WriteString(*choice.Delta.Content)
				if err := send(ctx, events, model.ContentEvent(*choice.Delta.Content)); err != nil {
					return nil, err
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				pos, ok := callIndex[tc.Index]
				if !ok {
					callIndex[tc.Index] = len(calls)
					pos = len(calls)
					calls = append(calls, types.ToolCall{
						ID:   tc.ID,
						Type: tc.Type,
						Function: types.FunctionCall{
							Name: tc.Function.Name,
						},
					})
					if err := send(ctx, events, model.ToolStartedEvent(model.ToolStartEvent{
						ToolName:   tc.Function.Name,
						ToolCallID: tc.ID,
					})); err != nil {
						return nil, err
					}
				}
				calls[pos].Function.Arguments += tc.Function.Arguments
			}
			if choice.FinishReason != nil {
				finishReason = *choice.FinishReason
			}
		}

		if chunk.Usage != nil {
			usage = toModelUsage(chunk.Usage)
		}
	}

	if usage == nil {
		usage = i.estimateUsage(history, content.String())
	}

	if err := send(ctx, events, model.FinishedEvent(model.FinishEvent{
		ModelName:    i.modelName,
		FinishReason: finishReason,
		Usage:        usage,
	})); err != nil {
		return nil, err
	}

	msg := types.ChatCompletionMessage{Role: "assistant"}
	if sawContent {
		inner := types.Text(content.String())
		msg.Content = &inner
	}
	if len(calls) > 0 {
		msg.ToolCalls = calls
	}

	return &model.InvocationResult{
		Message:      msg,
		FinishReason: finishReason,
	}, nil
}

// send delivers an event respecting cancellation; the events channel is
// bounded and applies backpressure.
func send(ctx context.Context, events chan<- model.Event, ev model.Event) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send event: %w", ctx.Err())
	}
}

// estimateUsage falls back to local token counting when the upstream
// stream carried no usage chunk.
func (i *Instance) estimateUsage(history []types.Message, completion string) *model.Usage {
	if i.counter == nil {
		return nil
	}

	var prompt strings.Builder
	for _, m := range history {
		prompt.WriteString(m.Inner().String())
		prompt.WriteString("\n")
	}

	in, err := i.counter.CountText(i.modelName, prompt.String())
	if err != nil {
		return nil
	}
	out, err := i.counter.CountText(i.modelName, completion)
	if err != nil {
		return nil
	}

	return &model.Usage{
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
	}
}

// toModelUsage maps upstream usage to the internal shape, deriving the
// cache-hit flag from the cached-token detail.
func toModelUsage(u *apiUsage) *model.Usage {
	out := &model.Usage{
		InputTokens:             u.PromptTokens,
		OutputTokens:            u.CompletionTokens,
		TotalTokens:             u.TotalTokens,
		PromptTokensDetails:     u.PromptTokensDetails,
		CompletionTokensDetails: u.CompletionTokensDetails,
	}
	if len(u.PromptTokensDetails) > 0 {
		var details promptTokensDetails
		if err := json.Unmarshal(u.PromptTokensDetails, &details); err == nil && details.CachedTokens > 0 {
			out.IsCacheUsed = true
		}
	}
	return out
}

// toAPIMessages converts stored thread messages to the upstream shape,
// flattening each message through its inner representation.
func toAPIMessages(history []types.Message) []apiMessage {
	out := make([]apiMessage, 0, len(history))
	for _, m := range history {
		am := apiMessage{Role: roleFor(m.Type)}
		if m.ToolCallID != nil {
			am.ToolCallID = *m.ToolCallID
		}
		for _, tc := range m.ToolCalls {
			am.ToolCalls = append(am.ToolCalls, apiToolCall{
				ID:   tc.ID,
				Type: tc.Type,
				Function: apiFunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}

		inner := m.Inner()
		if inner.IsText() {
			am.Content = inner.Text
		} else {
			parts := make([]apiContentPart, 0, len(inner.Parts))
			for _, p := range inner.Parts {
				parts = append(parts, toAPIContentPart(p))
			}
			am.Content = parts
		}
		out = append(out, am)
	}
	return out
}

func toAPIContentPart(p types.ContentPart) apiContentPart {
	switch p.Type {
	case types.MessageContentTypeImageUrl:
		part := apiContentPart{Type: "image_url", ImageURL: &apiImageURL{URL: p.Value}}
		if p.AdditionalOptions != nil && p.AdditionalOptions.Image != nil {
			part.ImageURL.Detail = strings.ToLower(string(*p.AdditionalOptions.Image))
		}
		return part
	case types.MessageContentTypeInputAudio:
		part := apiContentPart{Type: "input_audio", InputAudio: &apiInputAudio{Data: p.Value}}
		if p.AdditionalOptions != nil && p.AdditionalOptions.Audio != nil {
			part.InputAudio.Format = strings.ToLower(string(p.AdditionalOptions.Audio.Type))
		}
		return part
	default:
		return apiContentPart{Type: "text", Text: p.Value}
	}
}

func roleFor(t types.MessageType) string {
	switch t {
	case types.MessageTypeAI:
		return "assistant"
	default:
		return "user"
	}
}
