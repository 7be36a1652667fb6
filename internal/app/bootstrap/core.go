// internal/app/bootstrap/core.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/store/audit"
	"github.com/dalemusser/portalauthz/internal/app/store/oauthstate"
	"github.com/dalemusser/portalauthz/internal/app/store/principals"
	"github.com/dalemusser/portalauthz/internal/app/store/sessions"
	"github.com/dalemusser/portalauthz/internal/app/system/auditlog"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/claimstoken"
	"github.com/dalemusser/portalauthz/internal/app/system/identity"
	"github.com/dalemusser/portalauthz/internal/app/system/keys"
	"github.com/dalemusser/portalauthz/internal/app/system/principaladmin"
	"github.com/dalemusser/portalauthz/internal/app/system/roles"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// CoreOptions are the settings the core components need.
type CoreOptions struct {
	SessionKey    string
	ClaimsMaxAge  time.Duration
	AuditLogAdmin string
}

// Core is the authorization core: registry, stores, synchronizer, resolver
// and mutation API, wired once and shared by HTTP handlers and portalctl.
type Core struct {
	Registry   *roles.Registry
	Principals *principals.Store
	Sessions   *sessions.Store
	States     *oauthstate.Store
	Audit      *auditlog.Logger
	Claims     *authz.Synchronizer
	Resolver   *authz.Resolver
	Admin      *principaladmin.Service
}

// NewCore builds the core over db.
func NewCore(db *mongo.Database, opts CoreOptions, logger *zap.Logger) (*Core, error) {
	signKey, err := keys.Derive([]byte(opts.SessionKey), keys.ClaimsSign, 32)
	if err != nil {
		return nil, fmt.Errorf("derive claims key: %w", err)
	}
	codec, err := claimstoken.New(signKey)
	if err != nil {
		return nil, err
	}

	reg := roles.Default()
	principalStore := principals.New(db)
	principalStore.SetBaselineRole(reg.Baseline())
	sessionStore := sessions.New(db)
	auditLog := auditlog.New(audit.New(db), logger, auditlog.Config{Admin: opts.AuditLogAdmin})

	provider := identity.New(sessionStore, codec, logger)
	claims := authz.NewSynchronizer(reg, provider, logger)
	resolver := authz.NewResolver(reg, principalStore, claims, opts.ClaimsMaxAge, logger)
	admin := principaladmin.New(reg, principalStore, auditLog, claims, resolver, logger)

	logger.Info("authorization core ready",
		zap.Int("registry_version", reg.Version()),
		zap.Duration("claims_max_age", opts.ClaimsMaxAge))

	return &Core{
		Registry:   reg,
		Principals: principalStore,
		Sessions:   sessionStore,
		States:     oauthstate.New(db),
		Audit:      auditLog,
		Claims:     claims,
		Resolver:   resolver,
		Admin:      admin,
	}, nil
}

func coreOptions(appCfg AppConfig) CoreOptions {
	return CoreOptions{
		SessionKey:    appCfg.SessionKey,
		ClaimsMaxAge:  appCfg.ClaimsMaxAge,
		AuditLogAdmin: appCfg.AuditLogAdmin,
	}
}
