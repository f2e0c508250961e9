package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/aegisgate/contextmem/types"
)

// runStateRecord is the gorm row for a run-state checkpoint. The state is
// stored as a JSON blob; the record is small and read as a whole.
type runStateRecord struct {
	ExecutionID string `gorm:"primaryKey"`
	State       string
	UpdatedAt   int64 `gorm:"autoUpdateTime:milli"`
}

func (runStateRecord) TableName() string { return "run_state_checkpoints" }

// GormStore is a sqlite-backed checkpoint store.
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
		return nil, fmt.Errorf("failed to open sqlite checkpoint store: %w", err)
	}
	return NewGormStoreWithDB(db)
}

// NewGormStoreWithDB wraps an existing gorm connection.
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&runStateRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// LoadOrInit implements Store.
func (s *GormStore) LoadOrInit(ctx context.Context, executionID string, def types.RunState) (types.RunState, error) {
	var rec runStateRecord
	err := s.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		First(&rec).Error
	switch {
	case err == nil:
		var state types.RunState
		if err := json.Unmarshal([]byte(rec.State), &state); err != nil {
			return types.RunState{}, types.NewError(types.ErrCheckpointError, "decode run state").WithCause(err)
		}
		return state, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.Save(ctx, executionID, def); err != nil {
			return types.RunState{}, err
		}
		return def, nil
	default:
		return types.RunState{}, types.NewError(types.ErrCheckpointError, "load run state").WithCause(err)
	}
}

// Save implements Store.
func (s *GormStore) Save(ctx context.Context, executionID string, state types.RunState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return types.NewError(types.ErrCheckpointError, "encode run state").WithCause(err)
	}
	rec := runStateRecord{ExecutionID: executionID, State: string(raw)}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "execution_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"state", "updated_at"}),
		}).
		Create(&rec).Error
	if err != nil {
		return types.NewError(types.ErrCheckpointError, "save run state").WithCause(err)
	}
	return nil
}
