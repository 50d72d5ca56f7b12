// Package executor turns a single model invocation into a finalized chat
// completion response. It relays streamed events to the configured sinks
// in production order, joins the background usage computation, resolves
// the finish reason, and assembles the response.
package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/duonganhthu43/ai-gateway/internal/model"
	"github.com/duonganhthu43/ai-gateway/internal/types"
)

const tracerName = "github.com/duonganhthu43/ai-gateway/internal/executor"

// relayBufferSize bounds the internal relay channel. A full buffer
// suspends the event producer; events are never dropped.
const relayBufferSize = 10000

// CacheContext carries the optional cache-writer sinks for one
// execution. Events receives every relayed event; Response receives the
// final message exactly once. Both may be nil.
type CacheContext struct {
	Events   chan<- model.Event
	Response chan<- types.ChatCompletionMessage
}

// Params are the inputs to one execution. Events is the outbound sink
// the caller reads relayed events from; Handle, Cache, and Metadata are
// optional. Execute takes ownership of the Events and Cache.Events
// channels and closes them once the event stream ends, signalling
// end-of-stream to consumers.
type Params struct {
	Request  *types.ChatCompletionRequest
	Model    model.Instance
	Messages []types.Message
	Tags     map[string]string
	Events   chan<- model.Event
	Handle   *model.FinishHandle
	Inputs   map[string]any
	Cache    CacheContext
	Metadata *model.Metadata
}

// Execute orchestrates one model invocation end to end and returns the
// finalized response, or a single structured error naming the stage that
// failed. Events already relayed before a failure are not recalled.
func Execute(ctx context.Context, p Params) (*types.ChatCompletionResponse, error) {
	inner := make(chan model.Event, relayBufferSize)
	relayErr := make(chan error, 1)
	go func() {
		relayErr <- relayEvents(ctx, inner, p.Cache.Events, p.Events)
	}()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "model.invoke")
	defer span.End()
	span.SetAttributes(attribute.String("model", p.Request.Model))

	result, invokeErr := p.Model.Invoke(ctx, p.Inputs, inner, p.Messages, p.Tags)

	// The producer is done either way; close the relay input so the
	// relay drains everything already produced, then observe its result.
	close(inner)
	rerr := <-relayErr

	if invokeErr != nil {
		span.RecordError(invokeErr)
		span.SetStatus(codes.Error, invokeErr.Error())
		return nil, &Error{Type: ErrorTypeInvocation, Message: "model invocation failed", Err: invokeErr}
	}
	if rerr != nil {
		return nil, rerr
	}

	msg := result.Message
	if p.Cache.Response != nil {
		select {
		case p.Cache.Response <- msg:
		case <-ctx.Done():
			return nil, &Error{Type: ErrorTypeSinkClosed, Message: "cache response sink closed", Err: ctx.Err()}
		}
	}

	finishReason, err := resolveFinishReason(span.SetAttributes, result)
	if err != nil {
		return nil, err
	}

	var finish *model.FinishEvent
	if p.Handle != nil {
		joined, err := p.Handle.Join(ctx)
		if err != nil {
			return nil, &Error{Type: ErrorTypeJoinFailed, Message: "usage computation did not complete", Err: err}
		}
		finish = joined.Finish
	}
	var usage *model.Usage
	if finish != nil {
		usage = finish.Usage
	}
	summary, cacheUsed := SummarizeUsage(usage)

	label := p.Request.Model
	if p.Metadata != nil {
		label = p.Metadata.Label()
	}

	return &types.ChatCompletionResponse{
		ID:      uuid.New().String(),
		Object:  "chat.completion",
		Created: time.Now().UTC().Unix(),
		Model:   label,
		Choices: []types.ChatCompletionChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: &finishReason,
		}},
		Usage:       summary,
		IsCacheUsed: cacheUsed,
	}, nil
}

// resolveFinishReason implements the finish-reason state machine: tool
// calls win over content, content yields the provider-reported reason,
// and neither is a failed execution. The winning payload is recorded on
// the span for correlation.
func resolveFinishReason(record func(...attribute.KeyValue), result *model.InvocationResult) (string, error) {
	msg := result.Message
	switch {
	case msg.ToolCalls != nil:
		if calls, err := json.Marshal(msg.ToolCalls); err == nil {
			record(attribute.String("response", string(calls)))
		}
		return "tool_calls", nil
	case msg.Content != nil:
		record(attribute.String("response", msg.Content.String()))
		return result.FinishReason, nil
	default:
		return "", ErrEmptyResponse()
	}
}

// relayEvents forwards every event from in, first to the cache sink and
// then to the outbound sink, strictly in arrival order; one event is
// fully delivered to both destinations before the next is read. It
// returns nil once in is closed and drained, or a sink_closed error if a
// delivery could not complete. Both sinks are closed on the way out so
// consumers observe end-of-stream.
func relayEvents(ctx context.Context, in <-chan model.Event, cacheSink, outbound chan<- model.Event) error {
	defer func() {
		if cacheSink != nil {
			close(cacheSink)
		}
		if outbound != nil {
			close(outbound)
		}
	}()

	for ev := range in {
		if cacheSink != nil {
			select {
			case cacheSink <- ev:
			case <-ctx.Done():
				return &Error{Type: ErrorTypeSinkClosed, Message: "cache events sink closed", Err: ctx.Err()}
			}
		}
		if outbound != nil {
			select {
			case outbound <- ev:
			case <-ctx.Done():
				return &Error{Type: ErrorTypeSinkClosed, Message: "event sink closed", Err: ctx.Err()}
			}
		}
	}
	return nil
}
