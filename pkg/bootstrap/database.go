package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pdlbus/internal/config"
	"pdlbus/internal/constants"
	"pdlbus/internal/index"
	"pdlbus/internal/logger"
	"pdlbus/pkg/health"
)

// DatabaseConnector opens the database the configured index backend
// needs, and nothing else.
type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger

	clients index.Clients
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// Connect opens the client for index.type and registers its health check.
func (dc *DatabaseConnector) Connect(ctx context.Context, registry *health.CheckerRegistry) (index.Clients, error) {
	var err error
	switch dc.Config.Index.Type {
	case constants.IndexTypeRedis:
		dc.clients.Redis, err = dc.InitRedis(ctx)
		if err == nil && registry != nil {
			registry.RegisterOptional(health.NewRedisChecker(dc.clients.Redis))
		}
	case constants.IndexTypePostgres:
		dc.clients.Postgres, err = dc.InitPostgreSQL(ctx)
		if err == nil && registry != nil {
			registry.RegisterOptional(health.NewPostgreSQLChecker(dc.clients.Postgres))
		}
	case constants.IndexTypeMongoDB:
		dc.clients.Mongo, err = dc.InitMongoDB(ctx)
		if err == nil && registry != nil {
			registry.RegisterOptional(health.NewMongoDBChecker(dc.clients.Mongo))
		}
	}
	return dc.clients, err
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	cfg := dc.Config.Database.Redis
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", addr, err)
	}
	dc.Logger.Infow("Connected to Redis", "addr", addr, "db", cfg.DB)
	return rdb, nil
}

// PostgresDSN renders the connection URL, escaping credentials.
func PostgresDSN(cfg config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.DBName,
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}

func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	cfg := dc.Config.Database.Postgres
	db, err := sql.Open("postgres", PostgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres %s:%d unreachable: %w", cfg.Host, cfg.Port, err)
	}
	dc.Logger.Infow("Connected to PostgreSQL", "host", cfg.Host, "database", cfg.DBName)
	return db, nil
}

func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(dc.Config.Database.MongoDB.URI).
		SetAppName(dc.Config.Notification.ClientID))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb unreachable: %w", err)
	}
	dc.Logger.Infow("Connected to MongoDB", "database", dc.Config.Database.MongoDB.Database)
	return client, nil
}

// Close releases whatever Connect opened.
func (dc *DatabaseConnector) Close(ctx context.Context) []error {
	var errs []error
	closeOne := func(name string, fn func() error) {
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s close: %w", name, err))
		}
	}

	if c := dc.clients.Redis; c != nil {
		closeOne("redis", c.Close)
	}
	if c := dc.clients.Postgres; c != nil {
		closeOne("postgres", c.Close)
	}
	if c := dc.clients.Mongo; c != nil {
		closeOne("mongodb", func() error { return c.Disconnect(ctx) })
	}

	dc.clients = index.Clients{}
	return errs
}
