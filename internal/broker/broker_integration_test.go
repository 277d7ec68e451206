//go:build integration

package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"

	"pdlbus/internal/logger"
)

// testReplayFromSequence publishes three messages, then subscribes from
// sequence 2 and expects exactly the last two in order.
func testReplayFromSequence(t *testing.T, tr Transport, subject string) {
	t.Helper()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		payload := []byte(fmt.Sprintf("message-%d", i))
		require.Eventually(t, func() bool {
			return tr.Publish(ctx, subject, payload) == nil
		}, 30*time.Second, 500*time.Millisecond)
	}

	c := &collector{}
	sub, err := tr.Subscribe(ctx, subject, 2, c.handle)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return len(c.sequences()) >= 2 }, 30*time.Second, 100*time.Millisecond)
	assert.Equal(t, []uint64{2, 3}, c.sequences())

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, "message-2", string(c.msgs[0].Data))
	assert.Equal(t, subject, c.msgs[0].Subject)
}

func TestKafkaTransport_Integration(t *testing.T) {
	ctx := context.Background()
	container, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0",
		kafkamodule.WithClusterID("pdlbus-test"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	tr := NewKafkaTransport(KafkaOptions{Brokers: brokers, ClientID: "integration"}, logger.NopLogger())
	require.NoError(t, tr.Connect(ctx))
	t.Cleanup(func() { _ = tr.Close() })

	testReplayFromSequence(t, tr, "anss-kafka")
}

func TestNATSTransport_Integration(t *testing.T) {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	tr := NewNATSTransport(NATSOptions{
		URL:      fmt.Sprintf("nats://%s:%s", host, port.Port()),
		Stream:   "pdl",
		ClientID: "integration",
		Subjects: []string{"anss-nats"},
	}, logger.NopLogger())
	require.NoError(t, tr.Connect(ctx))
	t.Cleanup(func() { _ = tr.Close() })

	testReplayFromSequence(t, tr, "anss-nats")
}
