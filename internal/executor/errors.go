package executor

import "fmt"

// ErrorType categorizes an execution failure by the stage it occurred in.
type ErrorType string

const (
	// ErrorTypeInvocation wraps the model adapter's failure.
	ErrorTypeInvocation ErrorType = "invocation"

	// ErrorTypeEmptyResponse indicates the model produced neither tool
	// calls nor content.
	ErrorTypeEmptyResponse ErrorType = "empty_response"

	// ErrorTypeSinkClosed indicates an event or response sink stopped
	// accepting deliveries before the execution completed.
	ErrorTypeSinkClosed ErrorType = "sink_closed"

	// ErrorTypeJoinFailed indicates the background usage computation
	// could not be joined.
	ErrorTypeJoinFailed ErrorType = "join_failed"
)

// Error is a structured execution failure. Callers receive exactly one of
// these (or a complete response), never a partial result.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrEmptyResponse builds the canonical empty-response failure. The
// message text is part of the caller-facing contract.
func ErrEmptyResponse() *Error {
	return &Error{Type: ErrorTypeEmptyResponse, Message: "No content in response"}
}

// IsType reports whether err is an execution *Error of the given type.
func IsType(err error, t ErrorType) bool {
	e, ok := err.(*Error)
	return ok && e.Type == t
}
