package model

import (
	"context"
)

// FinishResult is what a joined finish collector yields: the final
// llm_finish event (nil if the stream never produced one) and the
// tool_start events observed along the way.
type FinishResult struct {
	Finish     *FinishEvent
	ToolStarts []ToolStartEvent
}

// FinishHandle is an awaitable background computation of usage and
// tool-start data, running concurrently with the main invocation.
type FinishHandle struct {
	done   chan struct{}
	result FinishResult
}

// Join waits for the collector to finish and returns its result. A
// cancelled context folds into the returned error instead of blocking
// forever.
func (h *FinishHandle) Join(ctx context.Context) (FinishResult, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return FinishResult{}, ctx.Err()
	}
}

// StartFinishCollector consumes events from in until it is closed,
// collecting the finish event and tool starts. Every event is forwarded
// to out (when non-nil) before the next one is read, preserving order;
// out is closed when the input drains so downstream consumers see
// end-of-stream.
func StartFinishCollector(in <-chan Event, out chan<- Event) *FinishHandle {
	h := &FinishHandle{done: make(chan struct{})}

	go func() {
		defer close(h.done)
		if out != nil {
			defer close(out)
		}

		var result FinishResult
		for ev := range in {
			switch ev.Type {
			case EventTypeLLMFinish:
				result.Finish = ev.Finish
			case EventTypeToolStart:
				if ev.ToolStart != nil {
					result.ToolStarts = append(result.ToolStarts, *ev.ToolStart)
				}
			}
			if out != nil {
				out <- ev
			}
		}
		h.result = result
	}()

	return h
}
