package broker

import (
	"fmt"
	"net"
	"strconv"

	"pdlbus/internal/config"
	"pdlbus/internal/constants"
	"pdlbus/internal/logger"
)

// NewTransport builds the transport selected by cfg.Type. The notification
// host and port are used when the transport section names no address.
func NewTransport(cfg config.BrokerConfig, n config.NotificationConfig, log logger.Logger) (Transport, error) {
	switch cfg.Type {
	case constants.BrokerTypeKafka:
		brokers := cfg.Kafka.Brokers
		if len(brokers) == 0 {
			brokers = []string{hostPort(n.ServerHost, n.ServerPort, constants.KafkaDefaultPort)}
		}
		return NewKafkaTransport(KafkaOptions{
			Brokers:   brokers,
			Partition: cfg.Kafka.Partition,
			ClientID:  n.ClientID,
		}, log.Named("kafka")), nil

	case constants.BrokerTypeNATS:
		url := cfg.NATS.URL
		if url == "" {
			url = "nats://" + hostPort(n.ServerHost, n.ServerPort, constants.NATSDefaultPort)
		}
		stream := cfg.NATS.Stream
		if stream == "" {
			stream = n.ClusterID
		}
		var subjects []string
		if n.Subject != "" {
			subjects = []string{n.Subject}
		}
		return NewNATSTransport(NATSOptions{
			URL:            url,
			Stream:         stream,
			ClientID:       n.ClientID,
			Subjects:       subjects,
			ConnectTimeout: cfg.NATS.ConnectTimeout,
		}, log.Named("nats")), nil

	case constants.BrokerTypeMemory:
		return NewMemoryTransport(SharedBus(), log.Named("memory")), nil

	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

func hostPort(host string, port, defaultPort int) string {
	if host == "" {
		host = "localhost"
	}
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
