package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"pdlbus/internal/config"
	"pdlbus/internal/constants"
	"pdlbus/internal/logger"
	pkgerrors "pdlbus/pkg/errors"
	"pdlbus/pkg/migrations"
)

// Clients carries the database connections opened by the service. Only the
// one matching index.type is used; the index never closes them.
type Clients struct {
	Redis    *redis.Client
	Postgres *sql.DB
	Mongo    *mongo.Client
}

// Open builds the index selected by cfg.Index.Type. Remote backends are
// wrapped in a circuit breaker.
func Open(ctx context.Context, cfg *config.Config, clients Clients, log logger.Logger) (Index, error) {
	backend := cfg.Index.Type
	var (
		idx Index
		err error
	)

	switch backend {
	case constants.IndexTypeMemory:
		idx = NewMemoryIndex()

	case constants.IndexTypeSQLite:
		path := cfg.Index.SQLite.Path
		if path == "" {
			path = constants.DefaultSQLitePath
		}
		idx, err = OpenSQLite(path)

	case constants.IndexTypeBadger:
		idx, err = OpenBadger(cfg.Index.Badger.Path)

	case constants.IndexTypePostgres:
		if clients.Postgres == nil {
			return nil, missingClient(backend)
		}
		if cfg.Database.RunMigrations {
			if err := migrations.MigratePostgres(clients.Postgres); err != nil {
				return nil, err
			}
			log.Info("PostgreSQL migrations applied")
		}
		idx = NewCircuitBreakerIndex(NewPostgresIndex(clients.Postgres), "postgres-index", cfg.CircuitBreaker)

	case constants.IndexTypeMongoDB:
		if clients.Mongo == nil {
			return nil, missingClient(backend)
		}
		dbName := cfg.Database.MongoDB.Database
		if dbName == "" {
			dbName = constants.DefaultMongoDBName
		}
		collection := clients.Mongo.Database(dbName).Collection(constants.DefaultMongoCollectionName)
		var mi *MongoIndex
		mi, err = NewMongoIndex(ctx, collection)
		if err == nil {
			idx = NewCircuitBreakerIndex(mi, "mongodb-index", cfg.CircuitBreaker)
		}

	case constants.IndexTypeRedis:
		if clients.Redis == nil {
			return nil, missingClient(backend)
		}
		idx = NewCircuitBreakerIndex(NewRedisIndex(clients.Redis), "redis-index", cfg.CircuitBreaker)

	default:
		return nil, pkgerrors.ErrConfiguration.WithMessage(fmt.Sprintf("unknown index type: %s", backend))
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open %s index: %w", backend, err)
	}

	log.Infow("Notification index opened", "type", backend)
	return Instrument(idx, backend), nil
}

func missingClient(backend string) error {
	return pkgerrors.ErrConfiguration.WithMessage(fmt.Sprintf("index type %s requires a %s connection", backend, backend))
}
