// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	auditlogfeature "github.com/dalemusser/portalauthz/internal/app/features/auditlog"
	authgooglefeature "github.com/dalemusser/portalauthz/internal/app/features/authgoogle"
	decidefeature "github.com/dalemusser/portalauthz/internal/app/features/decide"
	apierr "github.com/dalemusser/portalauthz/internal/app/features/errors"
	healthfeature "github.com/dalemusser/portalauthz/internal/app/features/health"
	logoutfeature "github.com/dalemusser/portalauthz/internal/app/features/logout"
	mefeature "github.com/dalemusser/portalauthz/internal/app/features/me"
	principalsfeature "github.com/dalemusser/portalauthz/internal/app/features/principals"
	"github.com/dalemusser/portalauthz/internal/app/system/auth"
	"github.com/dalemusser/portalauthz/internal/app/system/metrics"
	"github.com/dalemusser/portalauthz/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed. It wires the authorization core once and mounts:
//   - /health, /metrics               operational
//   - /auth/google, /logout           sign-in and sign-out
//   - /api/me                         the caller's own claims and legacy flags
//   - /authz/decide                   resource services (bearer token)
//   - /admin/principals, /admin/claims, /admin/audit
//     signed-in actors, rate limited per actor; the mutation API decides
//     whether the actor may act.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	core, err := NewCore(deps.MongoDatabase, coreOptions(appCfg), logger)
	if err != nil {
		logger.Error("authorization core init failed", zap.Error(err))
		return nil, err
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, sessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}
	// A cookie is only signed in while its server-side session is open, so
	// revocation after a mutation also ends cookie sessions.
	sessionMgr.SetActivityStore(core.Sessions)

	limiter := ratelimit.New(appCfg.AdminRateLimit, appCfg.AdminRateBurst)
	workerMu.Lock()
	adminLimiter = limiter
	workerMu.Unlock()

	r := chi.NewRouter()
	r.NotFound(apierr.NotFound)
	r.MethodNotAllowed(apierr.MethodNotAllowed)

	// Global auth middleware: loads the signed-in principal into context.
	r.Use(sessionMgr.LoadSession)

	healthHandler := healthfeature.NewHandler(deps.MongoClient, core.Registry, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/metrics", metrics.Handler())

	// Sign-in and sign-out
	googleHandler := authgooglefeature.NewHandler(
		sessionMgr, core.States, core.Admin, core.Sessions, core.Claims,
		appCfg.GoogleClientID, appCfg.GoogleClientSecret, appCfg.BaseURL, logger)
	r.Mount("/auth/google", authgooglefeature.Routes(googleHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, core.Sessions, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler))

	// Resource services
	decideHandler := decidefeature.NewHandler(core.Resolver, appCfg.DecideToken, logger)
	r.Mount("/authz", decidefeature.Routes(decideHandler))

	// The caller's own view
	meHandler := mefeature.NewHandler(core.Resolver, core.Registry, logger)
	r.Group(func(pr chi.Router) {
		pr.Use(sessionMgr.RequireSignedIn)
		pr.Mount("/api/me", mefeature.Routes(meHandler))
	})

	// Administration
	principalsHandler := principalsfeature.NewHandler(core.Admin, appCfg.ConflictRetries, logger)
	auditHandler := auditlogfeature.NewHandler(core.Admin, logger)
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(sessionMgr.RequireSignedIn)
		ar.Use(limiter.Middleware(auth.CurrentPrincipalID))
		ar.Mount("/principals", principalsfeature.Routes(principalsHandler))
		ar.Mount("/claims", principalsfeature.ClaimsRoutes(principalsHandler))
		ar.Mount("/audit", auditlogfeature.Routes(auditHandler))
	})

	logger.Info("routes mounted",
		zap.Bool("decide_enabled", appCfg.DecideToken != ""),
		zap.Bool("google_enabled", appCfg.GoogleClientID != ""))
	return r, nil
}
