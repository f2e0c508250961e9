package checkpoint

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aegisgate/contextmem/types"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client, "test:")
}

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	s, err := NewGormStoreWithDB(db)
	require.NoError(t, err)
	return s
}

func storesUnderTest(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  newTestRedisStore(t),
		"sqlite": newTestGormStore(t),
	}
}

func sampleState() types.RunState {
	return types.RunState{
		Task:          "enumerate the target's admin panel",
		TaskBrief:     "enumerate admin panel",
		SelectedTools: []string{"shell", "http_request"},
		LastToolDigests: []types.ToolDigest{
			{ToolName: "shell", Status: "ok", Summary: "nmap finished"},
		},
		LastUpdatedAtMs: 1700000000000,
	}
}

func TestStore_LoadOrInit_InitializesWhenAbsent(t *testing.T) {
	t.Parallel()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			def := sampleState()

			got, err := s.LoadOrInit(ctx, "exec-1", def)
			require.NoError(t, err)
			assert.Equal(t, def, got)

			// The default must have been persisted, not just returned.
			again, err := s.LoadOrInit(ctx, "exec-1", types.RunState{Task: "different"})
			require.NoError(t, err)
			assert.Equal(t, def.Task, again.Task)
		})
	}
}

func TestStore_SaveReplacesState(t *testing.T) {
	t.Parallel()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.LoadOrInit(ctx, "exec-2", sampleState())
			require.NoError(t, err)

			updated := sampleState()
			updated.TaskBrief = "pivot to internal network"
			updated.LastToolDigests = append(updated.LastToolDigests, types.ToolDigest{
				ToolName: "http_request", Status: "error", Summary: "403 on /admin",
			})
			require.NoError(t, s.Save(ctx, "exec-2", updated))

			got, err := s.LoadOrInit(ctx, "exec-2", types.RunState{})
			require.NoError(t, err)
			assert.Equal(t, "pivot to internal network", got.TaskBrief)
			require.Len(t, got.LastToolDigests, 2)
			assert.Equal(t, "http_request", got.LastToolDigests[1].ToolName)
		})
	}
}

func TestStore_ExecutionsAreIsolated(t *testing.T) {
	t.Parallel()
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := sampleState()
			a.Task = "task A"
			b := sampleState()
			b.Task = "task B"

			_, err := s.LoadOrInit(ctx, "exec-a", a)
			require.NoError(t, err)
			_, err = s.LoadOrInit(ctx, "exec-b", b)
			require.NoError(t, err)

			gotA, err := s.LoadOrInit(ctx, "exec-a", types.RunState{})
			require.NoError(t, err)
			gotB, err := s.LoadOrInit(ctx, "exec-b", types.RunState{})
			require.NoError(t, err)
			assert.Equal(t, "task A", gotA.Task)
			assert.Equal(t, "task B", gotB.Task)
		})
	}
}

func TestNew_Factory(t *testing.T) {
	t.Parallel()
	s, err := New(Config{Type: TypeMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(Config{Type: "mongo"})
	assert.Error(t, err)
}
