package checkpoint

import (
	"context"
	"sync"

	"github.com/aegisgate/contextmem/types"
)

// MemoryStore is an in-memory checkpoint store for tests and single-process
// embedding.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]types.RunState
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]types.RunState)}
}

// LoadOrInit implements Store.
func (s *MemoryStore) LoadOrInit(_ context.Context, executionID string, def types.RunState) (types.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[executionID]; ok {
		return state, nil
	}
	s.states[executionID] = def
	return def, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, executionID string, state types.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[executionID] = state
	return nil
}
