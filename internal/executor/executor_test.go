package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/duonganhthu43/ai-gateway/internal/model"
	"github.com/duonganhthu43/ai-gateway/internal/types"
)

// fakeInstance emits a scripted event sequence and returns a fixed
// result.
type fakeInstance struct {
	events []model.Event
	result *model.InvocationResult
	err    error
}

func (f *fakeInstance) Invoke(ctx context.Context, inputs map[string]any, events chan<- model.Event, history []types.Message, tags map[string]string) (*model.InvocationResult, error) {
	for _, ev := range f.events {
		select {
		case events <- ev:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func textResult(text, finishReason string) *model.InvocationResult {
	inner := types.Text(text)
	return &model.InvocationResult{
		Message:      types.ChatCompletionMessage{Role: "assistant", Content: &inner},
		FinishReason: finishReason,
	}
}

func baseRequest() *types.ChatCompletionRequest {
	return &types.ChatCompletionRequest{Model: "gpt-4o"}
}

func TestExecute_ContentResponse(t *testing.T) {
	instance := &fakeInstance{
		events: []model.Event{model.StartEvent(), model.ContentEvent("hello")},
		result: textResult("hello", "stop"),
	}

	resp, err := Execute(context.Background(), Params{
		Request: baseRequest(),
		Model:   instance,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if resp.Object != "chat.completion" {
		t.Errorf("Object = %q, want chat.completion", resp.Object)
	}
	if resp.ID == "" {
		t.Error("Expected a generated response ID")
	}
	if resp.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", resp.Model)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("len(Choices) = %d, want 1", len(resp.Choices))
	}
	choice := resp.Choices[0]
	if choice.Index != 0 {
		t.Errorf("Choice index = %d, want 0", choice.Index)
	}
	if choice.FinishReason == nil || *choice.FinishReason != "stop" {
		t.Errorf("FinishReason = %v, want stop", choice.FinishReason)
	}
	if choice.Message.Content == nil || choice.Message.Content.String() != "hello" {
		t.Errorf("Content = %v, want hello", choice.Message.Content)
	}
}

func TestExecute_ToolCallsWinOverContent(t *testing.T) {
	inner := types.Text("partial thoughts")
	instance := &fakeInstance{
		result: &model.InvocationResult{
			Message: types.ChatCompletionMessage{
				Role:    "assistant",
				Content: &inner,
				ToolCalls: []types.ToolCall{{
					ID:       "call_1",
					Type:     "function",
					Function: types.FunctionCall{Name: "get_weather", Arguments: `{"city":"Oslo"}`},
				}},
			},
			FinishReason: "stop",
		},
	}

	resp, err := Execute(context.Background(), Params{Request: baseRequest(), Model: instance})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if got := *resp.Choices[0].FinishReason; got != "tool_calls" {
		t.Errorf("FinishReason = %q, want tool_calls", got)
	}
}

func TestExecute_EmptyResponse(t *testing.T) {
	instance := &fakeInstance{
		result: &model.InvocationResult{
			Message:      types.ChatCompletionMessage{Role: "assistant"},
			FinishReason: "stop",
		},
	}

	_, err := Execute(context.Background(), Params{Request: baseRequest(), Model: instance})
	if err == nil {
		t.Fatal("Execute succeeded, want empty-response error")
	}
	if !IsType(err, ErrorTypeEmptyResponse) {
		t.Errorf("Error type = %v, want empty_response", err)
	}
	var execErr *Error
	if !errors.As(err, &execErr) || execErr.Message != "No content in response" {
		t.Errorf("Error message = %v, want %q", err, "No content in response")
	}
}

func TestExecute_InvocationError(t *testing.T) {
	upstream := errors.New("connection refused")
	instance := &fakeInstance{err: upstream}

	_, err := Execute(context.Background(), Params{Request: baseRequest(), Model: instance})
	if !IsType(err, ErrorTypeInvocation) {
		t.Fatalf("Error type = %v, want invocation", err)
	}
	if !errors.Is(err, upstream) {
		t.Errorf("Expected wrapped upstream error, got %v", err)
	}
}

func TestExecute_RelaysEventsInOrderToBothSinks(t *testing.T) {
	scripted := []model.Event{
		model.StartEvent(),
		model.ContentEvent("a"),
		model.ContentEvent("b"),
		model.FinishedEvent(model.FinishEvent{ModelName: "gpt-4o", FinishReason: "stop"}),
	}
	instance := &fakeInstance{events: scripted, result: textResult("ab", "stop")}

	cacheSink := make(chan model.Event, 16)
	outbound := make(chan model.Event, 16)
	collect := func(ch <-chan model.Event, into *[]model.Event, done chan<- struct{}) {
		for ev := range ch {
			*into = append(*into, ev)
		}
		close(done)
	}

	var cached, relayed []model.Event
	cacheDone := make(chan struct{})
	outDone := make(chan struct{})
	go collect(cacheSink, &cached, cacheDone)
	go collect(outbound, &relayed, outDone)

	_, err := Execute(context.Background(), Params{
		Request: baseRequest(),
		Model:   instance,
		Events:  outbound,
		Cache:   CacheContext{Events: cacheSink},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	<-cacheDone
	<-outDone

	for name, got := range map[string][]model.Event{"cache": cached, "outbound": relayed} {
		if len(got) != len(scripted) {
			t.Fatalf("%s sink received %d events, want %d", name, len(got), len(scripted))
		}
		for i := range scripted {
			if got[i].Type != scripted[i].Type {
				t.Errorf("%s sink event %d = %s, want %s", name, i, got[i].Type, scripted[i].Type)
			}
		}
	}
}

func TestExecute_CacheResponseHandoff(t *testing.T) {
	instance := &fakeInstance{result: textResult("hello", "stop")}
	responses := make(chan types.ChatCompletionMessage, 1)

	_, err := Execute(context.Background(), Params{
		Request: baseRequest(),
		Model:   instance,
		Cache:   CacheContext{Response: responses},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	select {
	case msg := <-responses:
		if msg.Content == nil || msg.Content.String() != "hello" {
			t.Errorf("Cached message content = %v, want hello", msg.Content)
		}
	default:
		t.Error("Expected the final message on the cache response channel")
	}
}

func TestExecute_UsageFromJoinedHandle(t *testing.T) {
	instance := &fakeInstance{
		events: []model.Event{
			model.FinishedEvent(model.FinishEvent{
				ModelName:    "gpt-4o",
				FinishReason: "stop",
				Usage:        &model.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, IsCacheUsed: true},
			}),
		},
		result: textResult("hello", "stop"),
	}

	events := make(chan model.Event, 16)
	handle := model.StartFinishCollector(events, nil)

	resp, err := Execute(context.Background(), Params{
		Request: baseRequest(),
		Model:   instance,
		Events:  events,
		Handle:  handle,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if resp.Usage.PromptTokens != 10 || resp.Usage.CompletionTokens != 5 || resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v, want 10/5/15", resp.Usage)
	}
	if resp.Usage.Cost != 0 {
		t.Errorf("Cost = %v, want 0", resp.Usage.Cost)
	}
	if resp.IsCacheUsed == nil || !*resp.IsCacheUsed {
		t.Errorf("IsCacheUsed = %v, want true", resp.IsCacheUsed)
	}
}

func TestExecute_NoHandleYieldsZeroUsage(t *testing.T) {
	instance := &fakeInstance{result: textResult("hello", "stop")}

	resp, err := Execute(context.Background(), Params{Request: baseRequest(), Model: instance})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if resp.Usage.TotalTokens != 0 || resp.Usage.PromptTokens != 0 {
		t.Errorf("Usage = %+v, want zeros", resp.Usage)
	}
	if resp.IsCacheUsed != nil {
		t.Errorf("IsCacheUsed = %v, want nil", resp.IsCacheUsed)
	}
}

func TestExecute_ModelLabel(t *testing.T) {
	instance := &fakeInstance{result: textResult("hello", "stop")}

	resp, err := Execute(context.Background(), Params{
		Request:  baseRequest(),
		Model:    instance,
		Metadata: &model.Metadata{ProviderName: "openai", Name: "gpt-4o"},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if resp.Model != "openai/gpt-4o" {
		t.Errorf("Model = %q, want openai/gpt-4o", resp.Model)
	}
}
