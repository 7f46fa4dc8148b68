// Package cache holds short lived lookups that don't need to hit the store
// on every request, currently redirect id to authorisation id.
//
// Two drivers are available: memory for a single instance and redis when
// several instances share the load.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("cache: key not found")

// Client is the driver contract. A ttl of 0 means no expiry.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Driver   string // "memory" | "redis"
	Addr     string // host:port, redis only
	Password string
	DB       int
	Prefix   string // prepended to every key
}

// New opens a client for cfg.Driver.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewMemory(cfg.Prefix), nil
	case "redis":
		return NewRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}

func prefixed(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}
