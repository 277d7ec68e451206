package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	Notification   NotificationConfig   `mapstructure:"notification"`
	Index          IndexConfig          `mapstructure:"index"`
	Signature      SignatureConfig      `mapstructure:"signature"`
	Storage        StorageConfig        `mapstructure:"storage"`
	Receiver       ReceiverConfig       `mapstructure:"receiver"`
	Bridge         BridgeConfig         `mapstructure:"bridge"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	NATS  NATSConfig  `mapstructure:"nats"`
}

// KafkaConfig maps a bus subject onto a single-partition topic. Brokers may
// be left empty, in which case notification.server_host/port is used.
type KafkaConfig struct {
	Brokers   []string    `mapstructure:"brokers"`
	Partition int         `mapstructure:"partition"`
	Retry     RetryConfig `mapstructure:"retry"`
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	Stream         string        `mapstructure:"stream"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type NotificationConfig struct {
	ServerHost     string        `mapstructure:"server_host"`
	ServerPort     int           `mapstructure:"server_port"`
	ClusterID      string        `mapstructure:"cluster_id"`
	ClientID       string        `mapstructure:"client_id"`
	Subject        string        `mapstructure:"subject"`
	TrackingFile   string        `mapstructure:"tracking_file"`
	ExpirationTTL  time.Duration `mapstructure:"expiration_ttl"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type IndexConfig struct {
	Type          string        `mapstructure:"type"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SQLite        SQLiteConfig  `mapstructure:"sqlite"`
	Badger        BadgerConfig  `mapstructure:"badger"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type BadgerConfig struct {
	Path string `mapstructure:"path"`
}

type SignatureConfig struct {
	PrivateKeyFile string      `mapstructure:"private_key_file"`
	Keys           []KeyConfig `mapstructure:"keys"`
}

// KeyConfig is one trusted public key. An empty Sources list trusts the key
// for every product source.
type KeyConfig struct {
	Name      string   `mapstructure:"name"`
	PublicKey string   `mapstructure:"public_key"`
	Sources   []string `mapstructure:"sources"`
}

type StorageConfig struct {
	URLTemplate  string        `mapstructure:"url_template"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type ReceiverConfig struct {
	Filter       string `mapstructure:"filter"`
	RelaySubject string `mapstructure:"relay_subject"`
	Verify       bool   `mapstructure:"verify"`
}

type BridgeConfig struct {
	Path         string          `mapstructure:"path"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
