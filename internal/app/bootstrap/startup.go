// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/store/oauthstate"
	"github.com/dalemusser/portalauthz/internal/app/store/sessions"
	"github.com/dalemusser/portalauthz/internal/app/system/metrics"
	"github.com/dalemusser/portalauthz/internal/app/system/ratelimit"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"github.com/dalemusser/portalauthz/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

const (
	// sessionMaxAge is the cookie lifetime. A server-side session idle for
	// longer can never be presented again and is closed by the cleanup worker.
	sessionMaxAge   = 7 * 24 * time.Hour
	cleanupInterval = 10 * time.Minute
)

var (
	workerMu     sync.Mutex
	cleanup      *workers.SessionCleanup
	adminLimiter *ratelimit.Limiter
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(storeTimeouts(appCfg))
	metrics.Register()

	w := workers.NewSessionCleanup(
		sessions.New(deps.MongoDatabase),
		oauthstate.New(deps.MongoDatabase),
		logger,
		cleanupInterval,
		sessionMaxAge,
	)
	w.Start()

	workerMu.Lock()
	cleanup = w
	workerMu.Unlock()

	logger.Info("startup complete",
		zap.Duration("store_timeout", timeouts.Store()),
		zap.Duration("provider_timeout", timeouts.Provider()))
	return nil
}

func stopWorkers() {
	workerMu.Lock()
	w, l := cleanup, adminLimiter
	cleanup, adminLimiter = nil, nil
	workerMu.Unlock()
	if w != nil {
		w.Stop()
	}
	if l != nil {
		l.Close()
	}
}
