package model

import (
	"context"

	"github.com/duonganhthu43/ai-gateway/internal/types"
)

// Metadata identifies the resolved provider/model pair behind an
// instance. It labels the response as "provider/name".
type Metadata struct {
	ProviderName string
	Name         string
}

// Label returns the response-facing model label.
func (m Metadata) Label() string {
	return m.ProviderName + "/" + m.Name
}

// InvocationResult is the terminal outcome of one model invocation: the
// final assembled message plus the provider-reported finish reason.
type InvocationResult struct {
	Message      types.ChatCompletionMessage
	FinishReason string
}

// Instance is one invocable model. Invoke performs a single generation,
// sending events to the given channel as they are produced, and returns
// the final result. Implementations must respect ctx on every channel
// send; they must not close the events channel, the caller owns it.
type Instance interface {
	Invoke(ctx context.Context, inputs map[string]any, events chan<- Event, history []types.Message, tags map[string]string) (*InvocationResult, error)
}
