package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type countingCloser struct {
	calls     atomic.Int32
	threshold time.Duration
	err       error
}

func (c *countingCloser) CloseInactive(ctx context.Context, threshold time.Duration) (int64, error) {
	c.calls.Add(1)
	c.threshold = threshold
	return 2, c.err
}

type countingCleaner struct{ calls atomic.Int32 }

func (c *countingCleaner) CleanupExpired(ctx context.Context) (int64, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestRunOnce(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	closer := &countingCloser{}
	cleaner := &countingCleaner{}
	w := NewSessionCleanup(closer, cleaner, zap.New(core), time.Minute, 30*time.Minute)

	w.RunOnce(context.Background())

	if closer.calls.Load() != 1 || closer.threshold != 30*time.Minute {
		t.Errorf("CloseInactive calls=%d threshold=%v", closer.calls.Load(), closer.threshold)
	}
	if cleaner.calls.Load() != 1 {
		t.Errorf("CleanupExpired calls = %d, want 1", cleaner.calls.Load())
	}
	if logs.FilterMessage("closed inactive sessions").Len() != 1 {
		t.Error("expected a log entry for closed sessions")
	}
}

func TestRunOnce_LogsStoreError(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	closer := &countingCloser{err: errors.New("boom")}
	w := NewSessionCleanup(closer, nil, zap.New(core), time.Minute, time.Minute)

	w.RunOnce(context.Background())

	if logs.FilterMessage("failed to close inactive sessions").Len() != 1 {
		t.Error("expected error log")
	}
}

func TestStartStop(t *testing.T) {
	closer := &countingCloser{}
	w := NewSessionCleanup(closer, nil, nil, 5*time.Millisecond, time.Minute)
	w.Start()

	deadline := time.Now().Add(2 * time.Second)
	for closer.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()
	w.Stop()

	if closer.calls.Load() == 0 {
		t.Error("worker never ran")
	}
}
