package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"pdlbus/internal/constants"
)

// envKeys may be overridden from the environment. The variable name is the
// upper-cased key with dots replaced by underscores.
var envKeys = []string{
	"server.port",
	"server.read_timeout_seconds",
	"server.write_timeout_seconds",

	"broker.type",
	"broker.kafka.brokers",
	"broker.kafka.partition",
	"broker.nats.url",
	"broker.nats.stream",

	"notification.server_host",
	"notification.server_port",
	"notification.cluster_id",
	"notification.client_id",
	"notification.subject",
	"notification.tracking_file",

	"index.type",
	"index.sqlite.path",
	"index.badger.path",

	"database.postgres.host",
	"database.postgres.port",
	"database.postgres.user",
	"database.postgres.password",
	"database.postgres.dbname",
	"database.postgres.sslmode",
	"database.redis.host",
	"database.redis.port",
	"database.redis.password",
	"database.redis.db",
	"database.mongodb.uri",
	"database.mongodb.database",

	"signature.private_key_file",
	"storage.url_template",

	"receiver.filter",

	"logging.level",
	"logging.format",

	"tracing.enabled",
	"tracing.service_name",
	"tracing.otlp.endpoint",
	"tracing.otlp.insecure",
}

var defaults = map[string]interface{}{
	"server.port":                  8080,
	"server.read_timeout_seconds":  "10s",
	"server.write_timeout_seconds": "10s",

	"broker.type":                         constants.BrokerTypeNATS,
	"broker.kafka.retry.max_attempts":     3,
	"broker.kafka.retry.initial_interval": "1s",
	"broker.kafka.retry.max_interval":     "30s",
	"broker.kafka.retry.multiplier":       2.0,
	"broker.nats.stream":                  constants.NATSDefaultStreamName,
	"broker.nats.connect_timeout":         constants.NATSConnectTimeout,

	"notification.server_host":     "localhost",
	"notification.tracking_file":   constants.DefaultTrackingFile,
	"notification.expiration_ttl":  constants.DefaultExpirationTTL,
	"notification.publish_timeout": constants.DefaultPublishTimeout,

	"index.type":           constants.IndexTypeSQLite,
	"index.sweep_interval": constants.DefaultSweepInterval,
	"index.sqlite.path":    constants.DefaultSQLitePath,

	"storage.fetch_timeout": constants.DefaultHTTPTimeout,

	"bridge.path":          constants.DefaultBridgePath,
	"bridge.write_timeout": constants.DefaultBridgeWriteWait,

	"logging.level":  "info",
	"logging.format": "json",
}

// LoadConfig reads a YAML file, layers the environment on top and runs the
// static validation. Each call uses its own viper instance.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// A broker list taken from the environment is one comma separated string.
	if raw, ok := v.Get("broker.kafka.brokers").(string); ok {
		cfg.Broker.Kafka.Brokers = splitList(raw)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
