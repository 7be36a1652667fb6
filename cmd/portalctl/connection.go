package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dalemusser/portalauthz/internal/app/bootstrap"
	"github.com/dalemusser/portalauthz/internal/app/system/authz"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// connection holds the flags needed to reach the principal store. Each flag
// defaults from the service's own PORTALAUTHZ_* variable so an operator on
// the service host needs no flags at all.
type connection struct {
	MongoURI      string
	MongoDatabase string
	SessionKey    string
	AuditLogAdmin string
	Verbose       bool
}

// AddFlags registers the connection flags on flagSet.
func (c *connection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.MongoURI, "mongo-uri", envDefault("MONGO_URI", "mongodb://localhost:27017"), "MongoDB connection URI")
	flagSet.StringVar(&c.MongoDatabase, "mongo-database", envDefault("MONGO_DATABASE", "portal_authz"), "MongoDB database name")
	flagSet.StringVar(&c.SessionKey, "session-key", envDefault("SESSION_KEY", ""), "Service master secret (needed to publish claims)")
	flagSet.StringVar(&c.AuditLogAdmin, "audit-log-admin", envDefault("AUDIT_LOG_ADMIN", "all"), "Audit sinks: 'all' or 'db'")
	flagSet.BoolVarP(&c.Verbose, "verbose", "v", false, "Log to stderr")
}

func envDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(bootstrap.EnvPrefix + "_" + key)); v != "" {
		return v
	}
	return fallback
}

// open connects and wires the authorization core.
func (c *connection) open(ctx context.Context) (*backend, error) {
	logger := zap.NewNop()
	if c.Verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		logger = l
	}
	if c.SessionKey == "" {
		return nil, fmt.Errorf("--session-key (or %s_SESSION_KEY) is required", bootstrap.EnvPrefix)
	}

	client, db, err := bootstrap.Connect(ctx, c.MongoURI, c.MongoDatabase, 0, 0)
	if err != nil {
		return nil, err
	}
	core, err := bootstrap.NewCore(db, bootstrap.CoreOptions{
		SessionKey:    c.SessionKey,
		ClaimsMaxAge:  authz.DefaultMaxClaimsAge,
		AuditLogAdmin: c.AuditLogAdmin,
	}, logger)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &backend{
		Admin:    core.Admin,
		Resolver: core.Resolver,
		close: func(ctx context.Context) error {
			_ = logger.Sync()
			dctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
			defer cancel()
			return client.Disconnect(dctx)
		},
	}, nil
}
