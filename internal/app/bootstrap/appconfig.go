// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds the authorization service's own configuration.
//
// Values come from flags, PORTALAUTHZ_* environment variables, config files
// and defaults (loaded in LoadConfig). WAFFLE's CoreConfig covers ports, TLS,
// logging and the environment name; everything specific to resolving and
// administering authorization lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database holding principals, audit, sessions
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session cookie. SessionKey is also the master secret the claims-token
	// and OAuth keys are derived from.
	SessionKey    string
	SessionName   string // default: portalauthz-session
	SessionDomain string // blank means current host

	// Resolution
	ClaimsMaxAge    time.Duration // staleness window for cached claim sets
	StoreTimeout    time.Duration // bound on each principal/audit/session store call
	ProviderTimeout time.Duration // bound on each identity provider call
	ConflictRetries int           // retries of a mutation that lost a version race

	// DecideToken is the bearer secret resource services present to
	// POST /authz/decide. Blank disables the endpoint.
	DecideToken string

	// AuditLogAdmin is "all" (MongoDB + zap) or "db".
	AuditLogAdmin string

	// Google OAuth
	GoogleClientID     string
	GoogleClientSecret string
	BaseURL            string // e.g., "https://auth.pack.org"

	// Per-actor limits on /admin
	AdminRateLimit float64 // requests per second
	AdminRateBurst int
}
