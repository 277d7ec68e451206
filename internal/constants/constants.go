package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
	KafkaDefaultPort  = 9092
)

const (
	NATSDefaultPort       = 4222
	NATSConnectTimeout    = 5 * time.Second
	NATSDefaultStreamName = "PDL"
)

const (
	BrokerTypeKafka  = "kafka"
	BrokerTypeNATS   = "nats"
	BrokerTypeMemory = "memory"
)

const (
	IndexTypeMemory   = "memory"
	IndexTypeSQLite   = "sqlite"
	IndexTypePostgres = "postgres"
	IndexTypeMongoDB  = "mongodb"
	IndexTypeRedis    = "redis"
	IndexTypeBadger   = "badger"
)

const (
	DefaultHTTPTimeout     = 10 * time.Second
	DefaultPublishTimeout  = 10 * time.Second
	DefaultExpirationTTL   = 7 * 24 * time.Hour
	DefaultSweepInterval   = time.Hour
	IndexMinRetention      = 10 * time.Minute
	DefaultBridgePath      = "/ws"
	DefaultBridgeWriteWait = 10 * time.Second
)

const (
	CacheKeyPrefixNotification = "pdl:notification:"
)

const (
	DefaultMongoDBName         = "pdlbus"
	DefaultMongoCollectionName = "notifications"
	DefaultSQLitePath          = "pdlbus-index.db"
	DefaultTrackingFile        = "pdlbus-tracking.json"
)

const (
	ShutdownTimeout        = 5 * time.Second
	TracingExporterTimeout = 5 * time.Second
)

// Version is reported in tracing resources and the client's --version.
var Version = "dev"

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)
