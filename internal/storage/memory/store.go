// Package memory provides an in-memory ThreadStore for tests and for
// running without persistence.
package memory

import (
	"context"
	"sync"

	"github.com/duonganhthu43/ai-gateway/internal/storage"
	"github.com/duonganhthu43/ai-gateway/internal/types"
)

// Store is an in-memory ThreadStore.
type Store struct {
	mu       sync.RWMutex
	threads  map[string]*storage.Thread
	messages map[string][]types.Message
}

var _ storage.ThreadStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		threads:  make(map[string]*storage.Thread),
		messages: make(map[string][]types.Message),
	}
}

func (s *Store) CreateThread(ctx context.Context, thread *storage.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *thread
	s.threads[thread.ID] = &copied
	return nil
}

func (s *Store) GetThread(ctx context.Context, id string) (*storage.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, ok := s.threads[id]
	if !ok {
		return nil, storage.ErrThreadNotFound
	}
	copied := *thread
	return &copied, nil
}

func (s *Store) AppendMessage(ctx context.Context, msg *types.Message) error {
	if msg.ThreadID == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := *msg.ThreadID
	if _, ok := s.threads[id]; !ok {
		return storage.ErrThreadNotFound
	}
	s.messages[id] = append(s.messages[id], *msg)
	return nil
}

func (s *Store) ListMessages(ctx context.Context, threadID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.threads[threadID]; !ok {
		return nil, storage.ErrThreadNotFound
	}
	out := make([]types.Message, len(s.messages[threadID]))
	copy(out, s.messages[threadID])
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
