// Package checkpoint persists the per-execution run state: task brief,
// selected tools, and recent tool digests. The context builder loads or
// initializes this record at the start of every build and writes it back,
// so an agent restarted mid-task reconstructs its working memory from here.
package checkpoint

import (
	"context"
	"fmt"

	"github.com/aegisgate/contextmem/types"
)

// Store is the durable key-value record of run state, keyed by execution id.
type Store interface {
	// LoadOrInit returns the stored run state for executionID, or persists
	// and returns def when none exists.
	LoadOrInit(ctx context.Context, executionID string, def types.RunState) (types.RunState, error)

	// Save persists the run state for executionID, replacing any previous
	// value.
	Save(ctx context.Context, executionID string, state types.RunState) error
}

// Type selects a Store implementation.
type Type string

const (
	TypeMemory Type = "memory"
	TypeRedis  Type = "redis"
	TypeSQLite Type = "sqlite"
)

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// Config configures checkpoint store construction.
type Config struct {
	Type  Type        `yaml:"type" json:"type"`
	Path  string      `yaml:"path" json:"path"`
	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// New creates a checkpoint Store based on the configuration.
func New(config Config) (Store, error) {
	switch config.Type {
	case TypeMemory, "":
		return NewMemoryStore(), nil
	case TypeRedis:
		return NewRedisStore(config.Redis)
	case TypeSQLite:
		return NewGormStore(config.Path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint store type: %s", config.Type)
	}
}
