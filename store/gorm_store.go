package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/aegisgate/contextmem/types"
)

// messageRecord is the gorm row for a conversation message. Seq is the
// store-assigned insertion order and the source of truth for message index.
type messageRecord struct {
	ID               string `gorm:"primaryKey"`
	ConversationID   string `gorm:"index:idx_conv_seq,priority:1"`
	Seq              int64  `gorm:"index:idx_conv_seq,priority:2;autoIncrement"`
	Role             string
	Content          string
	ToolCalls        string
	ToolCallID       string
	ReasoningContent string
	CreatedAt        int64 `gorm:"autoCreateTime:milli"`
}

func (messageRecord) TableName() string { return "conversation_messages" }

// GormStore is a sqlite-backed MessageStore. It uses the pure-Go sqlite
// driver so the module stays cgo-free.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens (or creates) the sqlite database at path and migrates
// the schema.
func NewGormStore(path string) (*GormStore, error) {
	if path == "" {
		path = "contextmem.db"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	return NewGormStoreWithDB(db)
}

// NewGormStoreWithDB wraps an existing gorm connection. The caller owns the
// connection lifecycle.
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&messageRecord{},
		&types.ConversationSegment{},
		&types.GlobalSummary{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// AppendMessage implements MessageStore.
func (s *GormStore) AppendMessage(ctx context.Context, conversationID string, msg types.Message) error {
	rec := messageRecord{
		ID:               uuid.NewString(),
		ConversationID:   conversationID,
		Role:             string(msg.Role),
		Content:          msg.Content,
		ToolCalls:        msg.ToolCalls,
		ToolCallID:       msg.ToolCallID,
		ReasoningContent: msg.ReasoningContent,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return types.NewError(types.ErrStoreError, "append message").WithCause(err)
	}
	return nil
}

// GetMessages implements MessageStore.
func (s *GormStore) GetMessages(ctx context.Context, conversationID string) ([]types.Message, error) {
	var recs []messageRecord
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Find(&recs).Error
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "load messages").WithCause(err)
	}

	msgs := make([]types.Message, 0, len(recs))
	for _, r := range recs {
		msgs = append(msgs, types.Message{
			Role:             types.Role(r.Role),
			Content:          r.Content,
			ToolCalls:        r.ToolCalls,
			ToolCallID:       r.ToolCallID,
			ReasoningContent: r.ReasoningContent,
			Timestamp:        time.UnixMilli(r.CreatedAt),
		})
	}
	return msgs, nil
}

// SaveSegment implements MessageStore.
func (s *GormStore) SaveSegment(ctx context.Context, segment *types.ConversationSegment) error {
	if err := s.db.WithContext(ctx).Create(segment).Error; err != nil {
		return types.NewError(types.ErrStoreError, "save segment").WithCause(err)
	}
	return nil
}

// DeleteSegments implements MessageStore.
func (s *GormStore) DeleteSegments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&types.ConversationSegment{}).Error
	if err != nil {
		return types.NewError(types.ErrStoreError, "delete segments").WithCause(err)
	}
	return nil
}

// UpsertGlobalSummary implements MessageStore.
func (s *GormStore) UpsertGlobalSummary(ctx context.Context, summary *types.GlobalSummary) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "conversation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"summary", "summary_tokens", "covers_up_to_index", "updated_at",
			}),
		}).
		Create(summary).Error
	if err != nil {
		return types.NewError(types.ErrStoreError, "upsert global summary").WithCause(err)
	}
	return nil
}

// GetSegmentsAndGlobal implements MessageStore.
func (s *GormStore) GetSegmentsAndGlobal(ctx context.Context, conversationID string) ([]types.ConversationSegment, *types.GlobalSummary, error) {
	var segments []types.ConversationSegment
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("segment_index ASC").
		Find(&segments).Error
	if err != nil {
		return nil, nil, types.NewError(types.ErrStoreError, "load segments").WithCause(err)
	}

	var global types.GlobalSummary
	err = s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		First(&global).Error
	switch {
	case err == nil:
		return segments, &global, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return segments, nil, nil
	default:
		return nil, nil, types.NewError(types.ErrStoreError, "load global summary").WithCause(err)
	}
}
