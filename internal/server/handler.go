package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/duonganhthu43/ai-gateway/internal/executor"
	"github.com/duonganhthu43/ai-gateway/internal/model"
	"github.com/duonganhthu43/ai-gateway/internal/storage"
	"github.com/duonganhthu43/ai-gateway/internal/types"
)

// apiError is the client-facing error envelope.
type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiError{Error: apiErrorBody{Message: message, Type: errType}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req types.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "messages must not be empty")
		return
	}

	instance, meta, err := s.resolver.Resolve(req.Model)
	if err != nil {
		writeError(w, http.StatusNotFound, "model_not_found", err.Error())
		return
	}

	history, err := s.buildHistory(r.Context(), &req)
	if err != nil {
		s.logger.Error("loading thread history",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load thread history")
		return
	}

	if req.Stream {
		s.streamCompletion(w, r, &req, instance, meta, history)
		return
	}

	// Unary path: the collector drains the executor's outbound events in
	// the background while Execute runs.
	events := make(chan model.Event, 64)
	handle := model.StartFinishCollector(events, nil)

	resp, err := executor.Execute(r.Context(), executor.Params{
		Request:  &req,
		Model:    instance,
		Messages: history,
		Tags:     executionTags(r.Context()),
		Events:   events,
		Handle:   handle,
		Inputs:   executionInputs(&req),
		Metadata: meta,
	})
	if err != nil {
		s.writeExecutionError(w, r, err)
		return
	}

	s.persistAssistantMessage(r.Context(), &req, resp)
	writeJSON(w, http.StatusOK, resp)
}

// streamCompletion runs the execution in the background and forwards
// content deltas to the client as chat.completion.chunk SSE events.
func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, req *types.ChatCompletionRequest, instance model.Instance, meta *model.Metadata, history []types.Message) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
		return
	}

	events := make(chan model.Event, 64)
	client := make(chan model.Event, 64)
	handle := model.StartFinishCollector(events, client)

	type executeResult struct {
		resp *types.ChatCompletionResponse
		err  error
	}
	done := make(chan executeResult, 1)
	go func() {
		resp, err := executor.Execute(r.Context(), executor.Params{
			Request:  req,
			Model:    instance,
			Messages: history,
			Tags:     executionTags(r.Context()),
			Events:   events,
			Handle:   handle,
			Inputs:   executionInputs(req),
			Metadata: meta,
		})
		done <- executeResult{resp: resp, err: err}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	chunkID := "chatcmpl-" + uuid.New().String()
	created := time.Now().UTC().Unix()
	label := req.Model
	if meta != nil {
		label = meta.Label()
	}

	for ev := range client {
		var chunk *streamChunk
		switch ev.Type {
		case model.EventTypeLLMContent:
			chunk = newContentChunk(chunkID, created, label, ev.Content)
		case model.EventTypeToolStart:
			// Tool-call deltas are accumulated server side; the client
			// receives the assembled calls in the final chunk.
			continue
		default:
			continue
		}
		writeSSE(w, flusher, chunk)
	}

	result := <-done
	if result.err != nil {
		s.logger.Error("streaming execution failed",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.Any("error", result.err))
		writeSSEError(w, flusher, result.err)
		return
	}

	writeSSE(w, flusher, finalChunk(chunkID, created, label, result.resp))
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()

	s.persistAssistantMessage(r.Context(), req, result.resp)
}

// streamChunk is the SSE chunk envelope, mirroring the OpenAI
// chat.completion.chunk shape.
type streamChunk struct {
	ID      string                     `json:"id"`
	Object  string                     `json:"object"`
	Created int64                      `json:"created"`
	Model   string                     `json:"model"`
	Choices []streamChunkChoice        `json:"choices"`
	Usage   *types.ChatCompletionUsage `json:"usage,omitempty"`
}

type streamChunkChoice struct {
	Index        int              `json:"index"`
	Delta        streamChunkDelta `json:"delta"`
	FinishReason *string          `json:"finish_reason"`
}

type streamChunkDelta struct {
	Role      string           `json:"role,omitempty"`
	Content   *string          `json:"content,omitempty"`
	ToolCalls []types.ToolCall `json:"tool_calls,omitempty"`
}

func newContentChunk(id string, created int64, modelLabel, delta string) *streamChunk {
	return &streamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   modelLabel,
		Choices: []streamChunkChoice{{
			Index: 0,
			Delta: streamChunkDelta{Content: &delta},
		}},
	}
}

// finalChunk closes the stream: it carries the finish reason, any
// assembled tool calls, and the usage summary.
func finalChunk(id string, created int64, modelLabel string, resp *types.ChatCompletionResponse) *streamChunk {
	chunk := &streamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   modelLabel,
		Usage:   &resp.Usage,
	}
	choice := streamChunkChoice{Index: 0}
	if len(resp.Choices) > 0 {
		choice.FinishReason = resp.Choices[0].FinishReason
		choice.Delta.ToolCalls = resp.Choices[0].Message.ToolCalls
	}
	chunk.Choices = []streamChunkChoice{choice}
	return chunk
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

func writeSSEError(w http.ResponseWriter, flusher http.Flusher, err error) {
	payload, merr := json.Marshal(apiError{Error: apiErrorBody{
		Message: err.Error(),
		Type:    executionErrorType(err),
	}})
	if merr != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if s.lister == nil {
		writeError(w, http.StatusNotImplemented, "not_implemented", "model listing is not configured")
		return
	}
	list, err := s.lister.ListModels(r.Context())
	if err != nil {
		s.logger.Error("listing models",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to list models")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// buildHistory assembles the message history for one execution. With a
// thread id and a configured store, previously persisted messages come
// first and the request's messages are appended and persisted; otherwise
// the request's messages stand alone.
func (s *Server) buildHistory(ctx context.Context, req *types.ChatCompletionRequest) ([]types.Message, error) {
	incoming := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		incoming = append(incoming, toStoredMessage(req, m))
	}

	if req.ThreadID == nil || s.store == nil {
		return incoming, nil
	}

	threadID := *req.ThreadID
	if _, err := s.store.GetThread(ctx, threadID); err != nil {
		if !errors.Is(err, storage.ErrThreadNotFound) {
			return nil, err
		}
		thread := &storage.Thread{
			ID:        threadID,
			ModelName: req.Model,
			UserID:    req.User,
		}
		if err := s.store.CreateThread(ctx, thread); err != nil {
			return nil, err
		}
	}

	history, err := s.store.ListMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}

	for i := range incoming {
		if err := s.store.AppendMessage(ctx, &incoming[i]); err != nil {
			return nil, err
		}
	}

	return append(history, incoming...), nil
}

// persistAssistantMessage stores the final assistant message on the
// request's thread. Persistence failures are logged, not surfaced: the
// completion already succeeded.
func (s *Server) persistAssistantMessage(ctx context.Context, req *types.ChatCompletionRequest, resp *types.ChatCompletionResponse) {
	if req.ThreadID == nil || s.store == nil || len(resp.Choices) == 0 {
		return
	}

	msg := resp.Choices[0].Message
	stored := types.Message{
		ModelName: resp.Model,
		ThreadID:  req.ThreadID,
		UserID:    req.User,
		Type:      types.MessageTypeAI,
		ToolCalls: msg.ToolCalls,
	}
	applyInnerContent(&stored, msg.Content)

	if err := s.store.AppendMessage(ctx, &stored); err != nil {
		s.logger.Error("persisting assistant message",
			slog.String("thread_id", *req.ThreadID),
			slog.Any("error", err))
	}
}

// toStoredMessage converts an inbound chat message to its persisted form.
func toStoredMessage(req *types.ChatCompletionRequest, m types.ChatCompletionMessage) types.Message {
	stored := types.Message{
		ModelName: req.Model,
		ThreadID:  req.ThreadID,
		UserID:    req.User,
		Type:      messageTypeFor(m.Role),
		ToolCalls: m.ToolCalls,
	}
	if m.ToolCallID != "" {
		id := m.ToolCallID
		stored.ToolCallID = &id
	}
	applyInnerContent(&stored, m.Content)
	return stored
}

func applyInnerContent(stored *types.Message, content *types.InnerMessage) {
	stored.ContentType = types.MessageContentTypeText
	if content == nil {
		return
	}
	if content.IsText() {
		text := content.Text
		stored.Content = &text
		return
	}
	stored.ContentArray = content.Parts
}

func messageTypeFor(role string) types.MessageType {
	if role == "assistant" {
		return types.MessageTypeAI
	}
	return types.MessageTypeHuman
}

// executionInputs carries per-request invocation inputs to the instance.
func executionInputs(req *types.ChatCompletionRequest) map[string]any {
	inputs := make(map[string]any)
	if req.User != "" {
		inputs["user"] = req.User
	}
	if req.MaxTokens > 0 {
		inputs["max_tokens"] = req.MaxTokens
	}
	if req.Temperature != nil {
		inputs["temperature"] = *req.Temperature
	}
	return inputs
}

// executionTags labels one execution for tracing correlation.
func executionTags(ctx context.Context) map[string]string {
	tags := make(map[string]string)
	if id := GetRequestID(ctx); id != "" {
		tags["request_id"] = id
	}
	return tags
}

func (s *Server) writeExecutionError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("execution failed",
		slog.String("request_id", GetRequestID(r.Context())),
		slog.Any("error", err))

	status := http.StatusInternalServerError
	switch {
	case executor.IsType(err, executor.ErrorTypeInvocation):
		status = http.StatusBadGateway
	case executor.IsType(err, executor.ErrorTypeEmptyResponse):
		status = http.StatusBadGateway
	}
	writeError(w, status, executionErrorType(err), err.Error())
}

func executionErrorType(err error) string {
	var execErr *executor.Error
	if errors.As(err, &execErr) {
		return string(execErr.Type)
	}
	return "internal_error"
}
