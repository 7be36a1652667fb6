// Package timeouts provides the bounded I/O budgets used around every call to
// the principal store and the identity provider.
//
// Both dependencies must answer within a few seconds. A deadline that expires
// is reported to callers as Unavailable (see authz.KindUnavailable), never as
// a deny.
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults used when Configure is not called.
const (
	DefaultPing     = 2 * time.Second
	DefaultStore    = 3 * time.Second
	DefaultProvider = 3 * time.Second
	DefaultBatch    = 60 * time.Second
)

var mu sync.RWMutex

var (
	ping     = DefaultPing
	store    = DefaultStore
	provider = DefaultProvider
	batch    = DefaultBatch
)

// Ping bounds health-check round trips.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Store bounds a single principal/audit/session store operation.
func Store() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return store
}

// Provider bounds a single identity-provider call (attach claims, revoke).
func Provider() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return provider
}

// Batch bounds bulk operations such as claims resync or role migration.
func Batch() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return batch
}

// Config holds timeout overrides. Zero values keep the current setting.
type Config struct {
	Ping     time.Duration
	Store    time.Duration
	Provider time.Duration
	Batch    time.Duration
}

// Configure applies non-zero values from cfg. Call during startup.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Store > 0 {
		store = cfg.Store
	}
	if cfg.Provider > 0 {
		provider = cfg.Provider
	}
	if cfg.Batch > 0 {
		batch = cfg.Batch
	}
}

// Reset restores the defaults. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	store = DefaultStore
	provider = DefaultProvider
	batch = DefaultBatch
}

// Current returns the active configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{Ping: ping, Store: store, Provider: provider, Batch: batch}
}

// WithTimeout derives a bounded context and returns a cancel func that logs
// when the deadline was the reason the operation ended.
//
//	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Store(), log, "principal get")
//	defer cancel()
func WithTimeout(parent context.Context, d time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", d),
			)
		}
		cancel()
	}
}
