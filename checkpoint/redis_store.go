package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aegisgate/contextmem/types"
)

// RedisStore is a redis-backed checkpoint store. Suitable for deployments
// where executions migrate between processes.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore creates a RedisStore and verifies the connection.
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, keyPrefix: defaultKeyPrefix(config.KeyPrefix)}, nil
}

func defaultKeyPrefix(prefix string) string {
	if prefix == "" {
		return "contextmem:runstate:"
	}
	return prefix
}

// NewRedisStoreWithClient wraps an existing client. The caller owns the
// client lifecycle. Used by tests with miniredis.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: defaultKeyPrefix(keyPrefix)}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(executionID string) string {
	return s.keyPrefix + executionID
}

// LoadOrInit implements Store.
func (s *RedisStore) LoadOrInit(ctx context.Context, executionID string, def types.RunState) (types.RunState, error) {
	raw, err := s.client.Get(ctx, s.key(executionID)).Result()
	switch {
	case err == nil:
		var state types.RunState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return types.RunState{}, types.NewError(types.ErrCheckpointError, "decode run state").WithCause(err)
		}
		return state, nil
	case errors.Is(err, redis.Nil):
		if err := s.Save(ctx, executionID, def); err != nil {
			return types.RunState{}, err
		}
		return def, nil
	default:
		return types.RunState{}, types.NewError(types.ErrCheckpointError, "load run state").WithCause(err)
	}
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, executionID string, state types.RunState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return types.NewError(types.ErrCheckpointError, "encode run state").WithCause(err)
	}
	if err := s.client.Set(ctx, s.key(executionID), raw, 0).Err(); err != nil {
		return types.NewError(types.ErrCheckpointError, "save run state").WithCause(err)
	}
	return nil
}
