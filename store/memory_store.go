package store

import (
	"context"
	"sort"
	"sync"

	"github.com/aegisgate/contextmem/types"
)

// MemoryStore is an in-memory MessageStore. Suitable for tests and
// single-process embedding; contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]types.Message
	segments map[string][]types.ConversationSegment
	globals  map[string]*types.GlobalSummary
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]types.Message),
		segments: make(map[string][]types.ConversationSegment),
		globals:  make(map[string]*types.GlobalSummary),
	}
}

// AppendMessage implements MessageStore.
func (s *MemoryStore) AppendMessage(_ context.Context, conversationID string, msg types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return nil
}

// GetMessages implements MessageStore.
func (s *MemoryStore) GetMessages(_ context.Context, conversationID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// SaveSegment implements MessageStore.
func (s *MemoryStore) SaveSegment(_ context.Context, segment *types.ConversationSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *segment
	s.segments[segment.ConversationID] = append(s.segments[segment.ConversationID], cp)
	return nil
}

// DeleteSegments implements MessageStore.
func (s *MemoryStore) DeleteSegments(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	for conv, segs := range s.segments {
		kept := segs[:0]
		for _, seg := range segs {
			if _, gone := drop[seg.ID]; !gone {
				kept = append(kept, seg)
			}
		}
		s.segments[conv] = kept
	}
	return nil
}

// UpsertGlobalSummary implements MessageStore.
func (s *MemoryStore) UpsertGlobalSummary(_ context.Context, summary *types.GlobalSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *summary
	s.globals[summary.ConversationID] = &cp
	return nil
}

// GetSegmentsAndGlobal implements MessageStore.
func (s *MemoryStore) GetSegmentsAndGlobal(_ context.Context, conversationID string) ([]types.ConversationSegment, *types.GlobalSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	segs := s.segments[conversationID]
	out := make([]types.ConversationSegment, len(segs))
	copy(out, segs)
	sort.Slice(out, func(i, j int) bool { return out[i].SegmentIndex < out[j].SegmentIndex })

	var global *types.GlobalSummary
	if g, ok := s.globals[conversationID]; ok {
		cp := *g
		global = &cp
	}
	return out, global, nil
}
