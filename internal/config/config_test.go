package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "pdlbus/pkg/errors"
)

const receiverYAML = `
server:
  port: 9090
broker:
  type: kafka
  kafka:
    brokers: ["kafka-1:9092", "kafka-2:9092"]
notification:
  cluster_id: pdl
  client_id: receiver-1
  subject: anss.realtime
  tracking_file: /var/lib/pdl/tracking.json
  expiration_ttl: 48h
index:
  type: memory
  sweep_interval: 30m
signature:
  keys:
    - name: us
      public_key: "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIGZ1a2Uta2V5LWZvci10ZXN0cy1vbmx5LTEyMzQ1Njc4 us"
      sources: [us]
receiver:
  filter: 'source == "us"'
  verify: true
circuit_breaker:
  enabled: true
  max_requests: 3
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, receiverYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeoutSeconds)
	assert.Equal(t, "kafka", cfg.Broker.Type)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "pdl", cfg.Notification.ClusterID)
	assert.Equal(t, 48*time.Hour, cfg.Notification.ExpirationTTL)
	assert.Equal(t, "memory", cfg.Index.Type)
	assert.Equal(t, 30*time.Minute, cfg.Index.SweepInterval)
	require.Len(t, cfg.Signature.Keys, 1)
	assert.Equal(t, []string{"us"}, cfg.Signature.Keys[0].Sources)
	assert.True(t, cfg.Receiver.Verify)
	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, uint32(3), cfg.CircuitBreaker.MaxRequests)
	assert.Equal(t, "/ws", cfg.Bridge.Path)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("NOTIFICATION_SUBJECT", "anss.test")

	cfg, err := LoadConfig(writeConfig(t, receiverYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "anss.test", cfg.Notification.Subject)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateNotification(t *testing.T) {
	valid := NotificationConfig{ClusterID: "pdl", ClientID: "c1", Subject: "s"}

	tests := []struct {
		name      string
		mutate    func(c *NotificationConfig)
		wantField string
	}{
		{"valid", func(c *NotificationConfig) {}, ""},
		{"missing cluster", func(c *NotificationConfig) { c.ClusterID = "" }, "notification.cluster_id"},
		{"missing client", func(c *NotificationConfig) { c.ClientID = " " }, "notification.client_id"},
		{"missing subject", func(c *NotificationConfig) { c.Subject = "" }, "notification.subject"},
		{"bad port", func(c *NotificationConfig) { c.ServerPort = 70000 }, "notification.server_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := ValidateNotification(cfg)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestValidateStatic_ReportsConfigurationError(t *testing.T) {
	cfg := &Config{
		Server:       ServerConfig{Port: 8080, ReadTimeoutSeconds: time.Second, WriteTimeoutSeconds: time.Second},
		Broker:       BrokerConfig{Type: "rabbitmq"},
		Notification: NotificationConfig{ClusterID: "pdl", ClientID: "c1"},
		Index:        IndexConfig{Type: "memory"},
	}

	err := ValidateStatic(cfg)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "broker.type")
	assert.Contains(t, err.Error(), "notification.subject")
}

func TestValidateIndex(t *testing.T) {
	tests := []struct {
		name    string
		index   IndexConfig
		db      DatabaseConfig
		wantErr bool
	}{
		{"memory", IndexConfig{Type: "memory"}, DatabaseConfig{}, false},
		{"sqlite with path", IndexConfig{Type: "sqlite", SQLite: SQLiteConfig{Path: "x.db"}}, DatabaseConfig{}, false},
		{"sqlite without path", IndexConfig{Type: "sqlite"}, DatabaseConfig{}, true},
		{"redis without database", IndexConfig{Type: "redis"}, DatabaseConfig{}, true},
		{"redis", IndexConfig{Type: "redis"}, DatabaseConfig{Redis: RedisConfig{Host: "r", Port: 6379}}, false},
		{"unknown", IndexConfig{Type: "cassandra"}, DatabaseConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateIndex(tt.index, tt.db)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateReceiver(t *testing.T) {
	n := NotificationConfig{Subject: "anss"}

	tests := []struct {
		name    string
		cfg     ReceiverConfig
		wantErr string
	}{
		{"empty", ReceiverConfig{}, ""},
		{"valid filter", ReceiverConfig{Filter: `source == "us" && productType == "origin"`}, ""},
		{"non-bool filter", ReceiverConfig{Filter: `code`}, "receiver.filter"},
		{"unknown variable", ReceiverConfig{Filter: `payload.x == 1`}, "receiver.filter"},
		{"relay loops back", ReceiverConfig{RelaySubject: "anss"}, "receiver.relay_subject"},
		{"relay elsewhere", ReceiverConfig{RelaySubject: "anss.relay"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateReceiver(tt.cfg, n)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.wantErr, vErr.Field)
		})
	}
}
