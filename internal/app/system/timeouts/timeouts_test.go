package timeouts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestConfigure_IgnoresZero(t *testing.T) {
	t.Cleanup(Reset)

	Configure(Config{Store: 7 * time.Second})
	got := Current()
	if got.Store != 7*time.Second {
		t.Errorf("Store = %v, want 7s", got.Store)
	}
	if got.Provider != DefaultProvider {
		t.Errorf("Provider = %v, want default %v", got.Provider, DefaultProvider)
	}
}

func TestReset(t *testing.T) {
	Configure(Config{Ping: time.Minute, Batch: time.Hour})
	Reset()
	if Ping() != DefaultPing || Batch() != DefaultBatch {
		t.Errorf("Reset did not restore defaults: %+v", Current())
	}
}

func TestWithTimeout_Expires(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), time.Millisecond, zap.NewNop(), "test")
	defer cancel()
	<-ctx.Done()
	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("ctx.Err() = %v, want DeadlineExceeded", ctx.Err())
	}
}
