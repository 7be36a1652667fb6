// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/portalauthz/internal/app/system/auditlog"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/keys"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvPrefix is the environment prefix for app keys (PORTALAUTHZ_MONGO_URI, ...).
const EnvPrefix = "PORTALAUTHZ"

// appConfigKeys defines the configuration keys for portalauthz.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: PORTALAUTHZ_MONGO_URI, PORTALAUTHZ_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "portal_authz", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Master secret for session cookies and claim tokens (must be strong in production)"},
	{Name: "session_name", Default: "portalauthz-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},

	// Resolution
	{Name: "claims_max_age", Default: "1h", Desc: "How long a published claim set is trusted before the store is re-read"},
	{Name: "store_timeout", Default: "3s", Desc: "Timeout for each principal, audit and session store call"},
	{Name: "provider_timeout", Default: "3s", Desc: "Timeout for each identity provider call"},
	{Name: "conflict_retries", Default: 3, Desc: "Retries for an admin mutation that lost a concurrent-write race"},
	{Name: "decide_token", Default: "", Desc: "Bearer token resource services present to /authz/decide (blank disables it)"},

	// Audit logging settings
	{Name: "audit_log_admin", Default: "all", Desc: "Mutation audit logging: 'all' (db+log) or 'db'"},

	// Google OAuth configuration
	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},
	{Name: "base_url", Default: "http://localhost:3000", Desc: "External base URL (OAuth callback)"},

	// Admin surface
	{Name: "admin_rate_limit", Default: 10, Desc: "Admin requests per second per actor"},
	{Name: "admin_rate_burst", Default: 20, Desc: "Admin request burst per actor"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, PORTALAUTHZ_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),

		ClaimsMaxAge:    appValues.Duration("claims_max_age", authz.DefaultMaxClaimsAge),
		StoreTimeout:    appValues.Duration("store_timeout", timeouts.DefaultStore),
		ProviderTimeout: appValues.Duration("provider_timeout", timeouts.DefaultProvider),
		ConflictRetries: appValues.Int("conflict_retries"),
		DecideToken:     appValues.String("decide_token"),

		AuditLogAdmin: appValues.String("audit_log_admin"),

		GoogleClientID:     appValues.String("google_client_id"),
		GoogleClientSecret: appValues.String("google_client_secret"),
		BaseURL:            appValues.String("base_url"),

		AdminRateLimit: float64(appValues.Int("admin_rate_limit")),
		AdminRateBurst: appValues.Int("admin_rate_burst"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// It rejects settings that would make the service fail open or lose audit
// records: a malformed MongoDB URI, a non-positive staleness window, a weak
// session key in production, and an audit setting without the durable sink.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.MongoDatabase == "" {
		return errors.New("mongo_database is required")
	}
	if appCfg.ClaimsMaxAge <= 0 {
		return fmt.Errorf("claims_max_age must be positive, got %s", appCfg.ClaimsMaxAge)
	}
	if appCfg.StoreTimeout < 0 || appCfg.ProviderTimeout < 0 {
		return errors.New("store_timeout and provider_timeout must not be negative")
	}
	if appCfg.ConflictRetries < 0 {
		return fmt.Errorf("conflict_retries must not be negative, got %d", appCfg.ConflictRetries)
	}
	if coreCfg != nil && coreCfg.Env == "prod" && len(appCfg.SessionKey) < keys.MinSecretLen {
		return fmt.Errorf("session_key must be at least %d bytes in prod", keys.MinSecretLen)
	}
	if err := (auditlog.Config{Admin: appCfg.AuditLogAdmin}).Validate(); err != nil {
		return err
	}
	if appCfg.AdminRateLimit <= 0 || appCfg.AdminRateBurst <= 0 {
		return errors.New("admin_rate_limit and admin_rate_burst must be positive")
	}
	if appCfg.DecideToken == "" {
		logger.Warn("decide_token is empty; POST /authz/decide will reject every caller")
	}
	if appCfg.GoogleClientID == "" || appCfg.GoogleClientSecret == "" {
		logger.Warn("Google OAuth is not configured; sign-in is disabled")
	}
	return nil
}

// storeTimeouts maps the config onto the shared timeout table.
func storeTimeouts(appCfg AppConfig) timeouts.Config {
	return timeouts.Config{
		Store:    appCfg.StoreTimeout,
		Provider: appCfg.ProviderTimeout,
		Ping:     minPositive(appCfg.StoreTimeout, timeouts.DefaultPing),
	}
}

func minPositive(a, b time.Duration) time.Duration {
	if a > 0 && a < b {
		return a
	}
	return b
}
