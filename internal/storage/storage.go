// Package storage defines the thread persistence contract. Messages are
// stored with the positional content-part encoding so history survives
// schema evolution of the part format.
package storage

import (
	"context"
	"errors"

	"github.com/duonganhthu43/ai-gateway/internal/types"
)

// ErrThreadNotFound is returned when a thread id does not exist.
var ErrThreadNotFound = errors.New("thread not found")

// Thread groups the messages of one conversation.
type Thread struct {
	ID        string  `json:"id"`
	ModelName string  `json:"model_name"`
	UserID    string  `json:"user_id"`
	Title     *string `json:"title,omitempty"`
}

// ThreadStore persists threads and their messages.
type ThreadStore interface {
	// CreateThread stores a new thread.
	CreateThread(ctx context.Context, thread *Thread) error

	// GetThread fetches a thread by id; ErrThreadNotFound when absent.
	GetThread(ctx context.Context, id string) (*Thread, error)

	// AppendMessage appends a message to its thread.
	AppendMessage(ctx context.Context, msg *types.Message) error

	// ListMessages returns a thread's messages in append order.
	ListMessages(ctx context.Context, threadID string) ([]types.Message, error)

	// Close releases store resources.
	Close() error
}
