package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "driverelay:session:"

// RedisStoreConfig configures a Redis-backed credential store.
type RedisStoreConfig struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	Sealer    *Sealer
}

// RedisStore shares sessions between API replicas through Redis. Entries never expire.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	sealer *Sealer
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      []string{addr},
		Username:   strings.TrimSpace(cfg.Username),
		Password:   cfg.Password,
		DB:         cfg.DB,
		MaxRetries: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newRedisStoreWithClient(client, cfg.KeyPrefix, cfg.Sealer), nil
}

func newRedisStoreWithClient(client redis.UniversalClient, prefix string, sealer *Sealer) *RedisStore {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, sealer: sealer}
}

// Put seals and stores credential under a new handle.
func (s *RedisStore) Put(ctx context.Context, credential []byte) (string, error) {
	if len(credential) == 0 {
		return "", ErrCredentialMissing
	}
	handle := uuid.NewString()
	sealed, err := s.sealer.Seal(handle, credential)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.key(handle), sealed, 0).Err(); err != nil {
		return "", fmt.Errorf("store session %s: %w", handle, err)
	}
	return handle, nil
}

// Get loads and opens the credential stored for handle.
func (s *RedisStore) Get(ctx context.Context, handle string) ([]byte, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, ErrSessionNotFound
	}
	sealed, err := s.client.Get(ctx, s.key(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", handle, err)
	}
	return s.sealer.Open(handle, sealed)
}

// Close releases the Redis client.
func (s *RedisStore) Close(context.Context) error {
	return s.client.Close()
}

func (s *RedisStore) key(handle string) string {
	return s.prefix + handle
}
