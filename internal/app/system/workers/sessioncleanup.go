// internal/app/system/workers/sessioncleanup.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// InactiveCloser closes server-side sessions idle for longer than threshold.
type InactiveCloser interface {
	CloseInactive(ctx context.Context, threshold time.Duration) (int64, error)
}

// ExpiredCleaner removes expired rows (OAuth state tokens) that a TTL index
// has not reaped yet.
type ExpiredCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// SessionCleanup is a background worker that closes inactive sessions and
// sweeps expired OAuth state.
type SessionCleanup struct {
	sessions          InactiveCloser
	states            ExpiredCleaner
	log               *zap.Logger
	interval          time.Duration
	inactiveThreshold time.Duration
	stopCh            chan struct{}
	stopOnce          sync.Once
	wg                sync.WaitGroup
}

// NewSessionCleanup creates a new session cleanup worker. states may be nil.
func NewSessionCleanup(sess InactiveCloser, states ExpiredCleaner, logger *zap.Logger, interval, inactiveThreshold time.Duration) *SessionCleanup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionCleanup{
		sessions:          sess,
		states:            states,
		log:               logger,
		interval:          interval,
		inactiveThreshold: inactiveThreshold,
		stopCh:            make(chan struct{}),
	}
}

// Start begins the background cleanup loop.
func (w *SessionCleanup) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("session cleanup worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("inactive_threshold", w.inactiveThreshold))
}

// Stop signals the worker to stop and waits for it to finish. Safe to call
// more than once.
func (w *SessionCleanup) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.log.Info("session cleanup worker stopped")
}

func (w *SessionCleanup) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(context.Background())
		}
	}
}

// RunOnce performs a single sweep.
func (w *SessionCleanup) RunOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, timeouts.Batch())
	defer cancel()

	count, err := w.sessions.CloseInactive(ctx, w.inactiveThreshold)
	if err != nil {
		w.log.Error("failed to close inactive sessions", zap.Error(err))
	} else if count > 0 {
		w.log.Info("closed inactive sessions", zap.Int64("count", count))
	}

	if w.states == nil {
		return
	}
	n, err := w.states.CleanupExpired(ctx)
	if err != nil {
		w.log.Error("failed to clean up oauth state", zap.Error(err))
		return
	}
	if n > 0 {
		w.log.Debug("removed expired oauth state", zap.Int64("count", n))
	}
}
