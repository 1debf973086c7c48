package credential

import (
	"context"
	"fmt"
	"strings"
)

// Drivers accepted by Config.Driver.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config selects and configures the credential store backend.
type Config struct {
	Driver        string
	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string
	Secret        string
}

// CloseFunc releases backend resources.
type CloseFunc func(context.Context) error

// Open builds the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, CloseFunc, error) {
	var sealer *Sealer
	if cfg.Secret != "" {
		s, err := NewSealer(cfg.Secret)
		if err != nil {
			return nil, nil, err
		}
		sealer = s
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		return NewMemoryStore(), func(context.Context) error { return nil }, nil
	case DriverRedis:
		store, err := NewRedisStore(ctx, RedisStoreConfig{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Sealer:   sealer,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case DriverPostgres:
		store, err := NewPostgresStore(ctx, cfg.DatabaseURL, sealer)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store driver %q", cfg.Driver)
	}
}
