package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/duonganhthu43/ai-gateway/internal/model"
	"github.com/duonganhthu43/ai-gateway/internal/storage/memory"
	"github.com/duonganhthu43/ai-gateway/internal/types"
)

// fakeInstance streams a fixed reply as two content deltas.
type fakeInstance struct {
	reply        string
	finishReason string
	err          error

	gotHistory []types.Message
}

func (f *fakeInstance) Invoke(ctx context.Context, inputs map[string]any, events chan<- model.Event, history []types.Message, tags map[string]string) (*model.InvocationResult, error) {
	f.gotHistory = history
	if f.err != nil {
		return nil, f.err
	}

	events <- model.StartEvent()
	half := len(f.reply) / 2
	for _, delta := range []string{f.reply[:half], f.reply[half:]} {
		events <- model.ContentEvent(delta)
	}
	events <- model.FinishedEvent(model.FinishEvent{
		ModelName:    "gpt-4o",
		FinishReason: f.finishReason,
		Usage:        &model.Usage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5},
	})

	inner := types.Text(f.reply)
	return &model.InvocationResult{
		Message:      types.ChatCompletionMessage{Role: "assistant", Content: &inner},
		FinishReason: f.finishReason,
	}, nil
}

type fakeResolver struct {
	instance *fakeInstance
	meta     *model.Metadata
	err      error
}

func (f *fakeResolver) Resolve(modelName string) (model.Instance, *model.Metadata, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.instance, f.meta, nil
}

func newTestServer(resolver *fakeResolver, opts ...Option) *Server {
	return New(0, resolver, opts...)
}

func postCompletion(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleChatCompletion_Unary(t *testing.T) {
	resolver := &fakeResolver{
		instance: &fakeInstance{reply: "Hello there", finishReason: "stop"},
		meta:     &model.Metadata{ProviderName: "openai", Name: "gpt-4o"},
	}
	srv := newTestServer(resolver)

	rec := postCompletion(t, srv, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Object != "chat.completion" {
		t.Errorf("Object = %q, want chat.completion", resp.Object)
	}
	if resp.Model != "openai/gpt-4o" {
		t.Errorf("Model = %q, want openai/gpt-4o", resp.Model)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("len(Choices) = %d, want 1", len(resp.Choices))
	}
	choice := resp.Choices[0]
	if choice.Message.Content == nil || choice.Message.Content.String() != "Hello there" {
		t.Errorf("Content = %v, want Hello there", choice.Message.Content)
	}
	if choice.FinishReason == nil || *choice.FinishReason != "stop" {
		t.Errorf("FinishReason = %v, want stop", choice.FinishReason)
	}
	if resp.Usage.TotalTokens != 5 {
		t.Errorf("Usage.TotalTokens = %d, want 5", resp.Usage.TotalTokens)
	}

	if got := resolver.instance.gotHistory; len(got) != 1 || got[0].Type != types.MessageTypeHuman {
		t.Errorf("Instance history = %+v, want one human message", got)
	}
}

func TestHandleChatCompletion_Validation(t *testing.T) {
	srv := newTestServer(&fakeResolver{instance: &fakeInstance{reply: "x", finishReason: "stop"}})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing model", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"empty messages", `{"model":"gpt-4o","messages":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postCompletion(t, srv, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleChatCompletion_UnknownModel(t *testing.T) {
	srv := newTestServer(&fakeResolver{err: errors.New("unknown provider")})

	rec := postCompletion(t, srv, `{"model":"nope","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", rec.Code)
	}
}

func TestHandleChatCompletion_UpstreamFailure(t *testing.T) {
	srv := newTestServer(&fakeResolver{
		instance: &fakeInstance{err: errors.New("connection refused")},
	})

	rec := postCompletion(t, srv, `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502: %s", rec.Code, rec.Body.String())
	}

	var envelope apiError
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Failed to decode error envelope: %v", err)
	}
	if envelope.Error.Type != "invocation" {
		t.Errorf("Error type = %q, want invocation", envelope.Error.Type)
	}
}

func TestHandleChatCompletion_Streaming(t *testing.T) {
	srv := newTestServer(&fakeResolver{
		instance: &fakeInstance{reply: "Hello there", finishReason: "stop"},
		meta:     &model.Metadata{ProviderName: "openai", Name: "gpt-4o"},
	})

	rec := postCompletion(t, srv, `{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}

	var (
		contents     []string
		finishReason string
		sawDone      bool
		sawUsage     bool
	)
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			sawDone = true
			continue
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			t.Fatalf("Failed to decode chunk %q: %v", data, err)
		}
		if chunk.Object != "chat.completion.chunk" {
			t.Errorf("Object = %q, want chat.completion.chunk", chunk.Object)
		}
		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]
			if choice.Delta.Content != nil {
				contents = append(contents, *choice.Delta.Content)
			}
			if choice.FinishReason != nil {
				finishReason = *choice.FinishReason
			}
		}
		if chunk.Usage != nil {
			sawUsage = true
			if chunk.Usage.TotalTokens != 5 {
				t.Errorf("Usage.TotalTokens = %d, want 5", chunk.Usage.TotalTokens)
			}
		}
	}

	if got := strings.Join(contents, ""); got != "Hello there" {
		t.Errorf("Streamed content = %q, want Hello there", got)
	}
	if finishReason != "stop" {
		t.Errorf("FinishReason = %q, want stop", finishReason)
	}
	if !sawUsage {
		t.Error("Expected a usage-bearing final chunk")
	}
	if !sawDone {
		t.Error("Expected a [DONE] terminator")
	}
}

func TestHandleChatCompletion_ThreadPersistence(t *testing.T) {
	store := memory.New()
	resolver := &fakeResolver{
		instance: &fakeInstance{reply: "Hi!", finishReason: "stop"},
		meta:     &model.Metadata{ProviderName: "openai", Name: "gpt-4o"},
	}
	srv := newTestServer(resolver, WithThreadStore(store))

	body := `{"model":"gpt-4o","thread_id":"t1","user":"u1","messages":[{"role":"user","content":"hello"}]}`
	rec := postCompletion(t, srv, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	ctx := context.Background()
	thread, err := store.GetThread(ctx, "t1")
	if err != nil {
		t.Fatalf("GetThread returned error: %v", err)
	}
	if thread.UserID != "u1" {
		t.Errorf("Thread.UserID = %q, want u1", thread.UserID)
	}

	msgs, err := store.ListMessages(ctx, "t1")
	if err != nil {
		t.Fatalf("ListMessages returned error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want human + ai", len(msgs))
	}
	if msgs[0].Type != types.MessageTypeHuman || msgs[0].Inner().String() != "hello" {
		t.Errorf("First stored message = %+v, want human hello", msgs[0])
	}
	if msgs[1].Type != types.MessageTypeAI || msgs[1].Inner().String() != "Hi!" {
		t.Errorf("Second stored message = %+v, want ai Hi!", msgs[1])
	}

	// A follow-up on the same thread sees the prior messages as history.
	rec = postCompletion(t, srv, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Second request status = %d, want 200", rec.Code)
	}
	if got := len(resolver.instance.gotHistory); got != 3 {
		t.Errorf("Second invocation history length = %d, want 3", got)
	}
}

type fakeLister struct {
	list *types.ModelList
	err  error
}

func (f *fakeLister) ListModels(ctx context.Context) (*types.ModelList, error) {
	return f.list, f.err
}

func TestHandleListModels(t *testing.T) {
	srv := newTestServer(
		&fakeResolver{},
		WithModelLister(&fakeLister{list: &types.ModelList{
			Object: "list",
			Data:   []types.Model{{ID: "gpt-4o", Object: "model"}},
		}}),
	)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	var list types.ModelList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to decode listing: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != "gpt-4o" {
		t.Errorf("Listing = %+v, want one gpt-4o entry", list)
	}
}

func TestHandleListModels_NotConfigured(t *testing.T) {
	srv := newTestServer(&fakeResolver{})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("Status = %d, want 501", rec.Code)
	}
}

func TestRequestIDMiddleware_SetsHeader(t *testing.T) {
	srv := newTestServer(&fakeResolver{})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected an X-Request-ID response header")
	}
}
