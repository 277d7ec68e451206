package config

import (
	"errors"
	"fmt"
	"strings"

	"pdlbus/internal/constants"
	"pdlbus/pkg/cel"
	pkgerrors "pdlbus/pkg/errors"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks everything that can be checked without connecting to
// anything. All problems are reported together as one ErrConfiguration.
func ValidateStatic(cfg *Config) error {
	var errs []error

	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateBroker(c.Broker) },
		func(c *Config) error { return ValidateNotification(c.Notification) },
		func(c *Config) error { return validateIndex(c.Index, c.Database) },
		func(c *Config) error { return validateDatabase(c.Database) },
		func(c *Config) error { return validateSignature(c.Signature) },
		func(c *Config) error { return validateReceiver(c.Receiver, c.Notification) },
		func(c *Config) error { return validateBridge(c.Bridge) },
	}

	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return pkgerrors.ErrConfiguration.WithCause(errors.Join(errs...))
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "":
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	case constants.BrokerTypeKafka:
		return validateKafka(cfg.Kafka)
	case constants.BrokerTypeNATS, constants.BrokerTypeMemory:
		return nil
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka, nats, memory)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.Partition < 0 {
		return &ValidationError{
			Field:   "broker.kafka.partition",
			Message: "partition must be non-negative",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

// ValidateNotification requires the three keys that name a subscription.
// Host and port fall back to the transport defaults.
func ValidateNotification(cfg NotificationConfig) error {
	required := []struct {
		field string
		value string
	}{
		{"notification.cluster_id", cfg.ClusterID},
		{"notification.client_id", cfg.ClientID},
		{"notification.subject", cfg.Subject},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{
				Field:   r.field,
				Message: "value is required",
			}
		}
	}

	if cfg.ServerPort < 0 || cfg.ServerPort > 65535 {
		return &ValidationError{
			Field:   "notification.server_port",
			Message: fmt.Sprintf("port must be between 0 and 65535, got %d", cfg.ServerPort),
		}
	}

	if cfg.ExpirationTTL < 0 {
		return &ValidationError{
			Field:   "notification.expiration_ttl",
			Message: "expiration ttl must be non-negative",
		}
	}

	return nil
}

func validateIndex(cfg IndexConfig, db DatabaseConfig) error {
	switch cfg.Type {
	case constants.IndexTypeMemory:
	case constants.IndexTypeSQLite:
		if cfg.SQLite.Path == "" {
			return &ValidationError{Field: "index.sqlite.path", Message: "sqlite path is required"}
		}
	case constants.IndexTypeBadger:
		if cfg.Badger.Path == "" {
			return &ValidationError{Field: "index.badger.path", Message: "badger path is required"}
		}
	case constants.IndexTypePostgres:
		if db.Postgres.Host == "" {
			return &ValidationError{Field: "database.postgres.host", Message: "postgres index requires database.postgres"}
		}
	case constants.IndexTypeMongoDB:
		if db.MongoDB.URI == "" {
			return &ValidationError{Field: "database.mongodb.uri", Message: "mongodb index requires database.mongodb"}
		}
	case constants.IndexTypeRedis:
		if db.Redis.Host == "" {
			return &ValidationError{Field: "database.redis.host", Message: "redis index requires database.redis"}
		}
	default:
		return &ValidationError{
			Field:   "index.type",
			Message: fmt.Sprintf("unknown index type: %s (supported: memory, sqlite, badger, postgres, mongodb, redis)", cfg.Type),
		}
	}

	if cfg.SweepInterval < 0 {
		return &ValidationError{
			Field:   "index.sweep_interval",
			Message: "sweep interval must be non-negative",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validateSignature(cfg SignatureConfig) error {
	for i, key := range cfg.Keys {
		if key.Name == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("signature.keys[%d].name", i),
				Message: "key name is required",
			}
		}
		if strings.TrimSpace(key.PublicKey) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("signature.keys[%d].public_key", i),
				Message: "public key is required",
			}
		}
	}
	return nil
}

func validateBridge(cfg BridgeConfig) error {
	if cfg.Path != "" && !strings.HasPrefix(cfg.Path, "/") {
		return &ValidationError{
			Field:   "bridge.path",
			Message: "path must start with /",
		}
	}

	if cfg.RateLimit.Enabled && (cfg.RateLimit.RPS <= 0 || cfg.RateLimit.Burst <= 0) {
		return &ValidationError{
			Field:   "bridge.rate_limit",
			Message: "rps and burst must be positive when rate limiting is enabled",
		}
	}

	return nil
}

func validateReceiver(cfg ReceiverConfig, n NotificationConfig) error {
	if cfg.RelaySubject != "" && cfg.RelaySubject == n.Subject {
		return &ValidationError{
			Field:   "receiver.relay_subject",
			Message: "relay subject must differ from notification.subject",
		}
	}

	if cfg.Filter == "" {
		return nil
	}
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return err
	}
	if err := evaluator.ValidateFilterExpression(cfg.Filter); err != nil {
		return &ValidationError{
			Field:   "receiver.filter",
			Message: err.Error(),
		}
	}
	return nil
}
