// Package store provides durable persistence for conversation messages,
// segment summaries, and global summaries.
//
// Conversation id is the sole isolation key: no in-process state is shared
// across conversations, and callers reload everything they need at the start
// of each build. Concurrent builds for the same conversation id must be
// serialized by the caller.
package store

import (
	"context"
	"fmt"

	"github.com/aegisgate/contextmem/types"
)

// MessageStore is the durable, append-only log of conversation messages plus
// the compaction records derived from them. All write operations are single
// atomic store operations, which makes compaction restart-safe: a build
// cancelled mid-flight leaves only fully persisted segments behind.
type MessageStore interface {
	// AppendMessage appends a message to the conversation log. Insertion
	// order defines the message index.
	AppendMessage(ctx context.Context, conversationID string, msg types.Message) error

	// GetMessages returns all messages of a conversation in insertion order.
	GetMessages(ctx context.Context, conversationID string) ([]types.Message, error)

	// SaveSegment persists a newly created conversation segment.
	SaveSegment(ctx context.Context, segment *types.ConversationSegment) error

	// DeleteSegments removes segments that were folded into the global
	// summary.
	DeleteSegments(ctx context.Context, ids []string) error

	// UpsertGlobalSummary creates or replaces the conversation's single
	// global summary.
	UpsertGlobalSummary(ctx context.Context, summary *types.GlobalSummary) error

	// GetSegmentsAndGlobal returns the live segments in segment-index order
	// and the global summary, or nil when none exists.
	GetSegmentsAndGlobal(ctx context.Context, conversationID string) ([]types.ConversationSegment, *types.GlobalSummary, error)
}

// Type selects a MessageStore implementation.
type Type string

const (
	TypeMemory Type = "memory"
	TypeSQLite Type = "sqlite"
)

// Config configures store construction.
type Config struct {
	Type Type `yaml:"type" json:"type"`
	// Path is the sqlite database path. ":memory:" is accepted for tests.
	Path string `yaml:"path" json:"path"`
}

// New creates a MessageStore based on the configuration.
func New(config Config) (MessageStore, error) {
	switch config.Type {
	case TypeMemory, "":
		return NewMemoryStore(), nil
	case TypeSQLite:
		return NewGormStore(config.Path)
	default:
		return nil, fmt.Errorf("unsupported message store type: %s", config.Type)
	}
}
