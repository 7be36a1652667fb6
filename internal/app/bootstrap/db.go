// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/portalauthz/internal/app/store/audit"
	"github.com/dalemusser/portalauthz/internal/app/store/oauthstate"
	"github.com/dalemusser/portalauthz/internal/app/store/principals"
	"github.com/dalemusser/portalauthz/internal/app/store/sessions"
	"github.com/dalemusser/portalauthz/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"
)

// ConnectDB opens the MongoDB client and verifies it with a ping.
//
// Reads go to the primary with majority read concern and writes wait for a
// majority, so a decision never sees a principal older than the last
// acknowledged mutation.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	client, db, err := Connect(ctx, appCfg.MongoURI, appCfg.MongoDatabase, appCfg.MongoMaxPoolSize, appCfg.MongoMinPoolSize)
	if err != nil {
		logger.Error("MongoDB connect failed", zap.Error(err))
		return DBDeps{}, err
	}
	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", appCfg.MongoMaxPoolSize))
	return DBDeps{MongoClient: client, MongoDatabase: db}, nil
}

// Connect is shared by the service and portalctl.
func Connect(ctx context.Context, uri, database string, maxPool, minPool uint64) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetReadPreference(readpref.Primary()).
		SetReadConcern(readconcern.Majority()).
		SetWriteConcern(writeconcern.Majority())
	if maxPool > 0 {
		opts.SetMaxPoolSize(maxPool)
	}
	if minPool > 0 {
		opts.SetMinPoolSize(minPool)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()
	if err := client.Ping(pctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, client.Database(database), nil
}

// EnsureSchema creates the indexes every store relies on. The unique
// principal email index and the audit append-only ordering are correctness
// requirements, so a failure here aborts startup.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	return ensureIndexes(ctx, deps.MongoDatabase, logger)
}

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

func ensureIndexes(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	steps := []struct {
		name string
		s    indexer
	}{
		{"principals", principals.New(db)},
		{"audit", audit.New(db)},
		{"sessions", sessions.New(db)},
		{"oauth_states", oauthstate.New(db)},
	}
	for _, step := range steps {
		ictx, cancel := context.WithTimeout(ctx, timeouts.Batch())
		err := step.s.EnsureIndexes(ictx)
		cancel()
		if err != nil {
			logger.Error("ensure indexes failed", zap.String("collection", step.name), zap.Error(err))
			return fmt.Errorf("ensure %s indexes: %w", step.name, err)
		}
	}
	logger.Info("indexes ensured")
	return nil
}
