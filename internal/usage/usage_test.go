package usage_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/pathflow/internal/usage"
)

func setupRedis(t *testing.T) (*usage.RedisSet, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := usage.NewRedisSetWithClient(client, "")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func sets(t *testing.T) map[string]usage.Set {
	redisSet, _ := setupRedis(t)
	return map[string]usage.Set{
		"memory": usage.NewMemorySet(),
		"redis":  redisSet,
	}
}

func TestSet_MarkIsCaseInsensitiveAndIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range sets(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Mark(ctx, "Svc.entry", "svc.ENTRY", "Svc.helper"))
			n, err := s.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			got, err := s.Marked(ctx, "SVC.entry", "Svc.unused", "svc.helper")
			require.NoError(t, err)
			assert.Equal(t, []bool{true, false, true}, got)

			members, err := s.Members(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"svc.entry", "svc.helper"}, members)

			require.NoError(t, s.Reset(ctx))
			n, err = s.Len(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestSet_ConcurrentMarks(t *testing.T) {
	ctx := context.Background()
	for name, s := range sets(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						assert.NoError(t, s.Mark(ctx, fmt.Sprintf("T.m%d", i)))
					}
				}()
			}
			wg.Wait()
			n, err := s.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(50), n)
		})
	}
}

func TestRedisSet_UsesConfiguredKey(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := usage.NewRedisSet(usage.RedisConfig{Addr: mr.Addr(), Key: "run:42"})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Mark(context.Background(), "A.b"))
	members, err := mr.Members("run:42")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b"}, members)
}

func TestRedisSet_ConnectionError(t *testing.T) {
	_, err := usage.NewRedisSet(usage.RedisConfig{Addr: "localhost:99999"})
	assert.Error(t, err)
}

func TestSet_EmptyMarked(t *testing.T) {
	s, _ := setupRedis(t)
	got, err := s.Marked(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_RunsAreIsolated(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	redisStore := usage.NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "runs")
	t.Cleanup(func() { _ = redisStore.Close() })

	stores := map[string]usage.Store{
		"memory": usage.MemoryStore{},
		"redis":  redisStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			first, err := store.ForRun(ctx, "r1")
			require.NoError(t, err)
			second, err := store.ForRun(ctx, "r2")
			require.NoError(t, err)

			require.NoError(t, first.Mark(ctx, "Svc.entry"))
			got, err := second.Marked(ctx, "Svc.entry")
			require.NoError(t, err)
			assert.Equal(t, []bool{false}, got)

			n, err := first.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
		})
	}

	members, err := mr.Members("runs:r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"svc.entry"}, members)
}
