package usage

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the set key used when none is configured.
const DefaultRedisKey = "pathflow:usage"

// RedisConfig holds Redis connection settings for the usage sets.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Key is the Redis set holding the marked methods. A RedisStore uses it
	// as the prefix of each run's key.
	Key string
}

// RedisStore keeps the set of run r under "<prefix>:<r>".
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and checks the connection.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisStoreWithClient(client, cfg.Key), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKey
	}
	return &RedisStore{client: client, prefix: prefix}
}

// ForRun returns the set of runID. Sets share the store's client, so they
// must not be closed.
func (s *RedisStore) ForRun(_ context.Context, runID string) (Set, error) {
	return NewRedisSetWithClient(s.client, s.prefix+":"+runID), nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error { return s.client.Close() }

// RedisSet is a Set stored in one Redis set, so several analyzer processes can
// share usage marks.
type RedisSet struct {
	client *redis.Client
	key    string
}

// NewRedisSet connects to Redis and checks the connection.
func NewRedisSet(cfg RedisConfig) (*RedisSet, error) {
	client, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisSetWithClient(client, cfg.Key), nil
}

func dial(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("usage: connect redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisSetWithClient wraps an existing client.
func NewRedisSetWithClient(client *redis.Client, key string) *RedisSet {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSet{client: client, key: key}
}

// Mark implements Set.
func (s *RedisSet) Mark(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = Normalize(k)
	}
	if err := s.client.SAdd(ctx, s.key, members...).Err(); err != nil {
		return fmt.Errorf("usage: mark: %w", err)
	}
	return nil
}

// Marked implements Set.
func (s *RedisSet) Marked(ctx context.Context, keys ...string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = Normalize(k)
	}
	out, err := s.client.SMIsMember(ctx, s.key, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("usage: marked: %w", err)
	}
	return out, nil
}

// Members implements Set.
func (s *RedisSet) Members(ctx context.Context) ([]string, error) {
	out, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("usage: members: %w", err)
	}
	slices.Sort(out)
	return out, nil
}

// Len implements Set.
func (s *RedisSet) Len(ctx context.Context) (int64, error) {
	n, err := s.client.SCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("usage: len: %w", err)
	}
	return n, nil
}

// Reset implements Set.
func (s *RedisSet) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("usage: reset: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisSet) Close() error { return s.client.Close() }
