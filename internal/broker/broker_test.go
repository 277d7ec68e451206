package broker

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdlbus/internal/config"
	"pdlbus/internal/logger"
	pkgerrors "pdlbus/pkg/errors"
)

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(_ context.Context, msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) sequences() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, 0, len(c.msgs))
	for _, m := range c.msgs {
		out = append(out, m.Sequence)
	}
	return out
}

func connectedMemory(t *testing.T, bus *Bus) *MemoryTransport {
	t.Helper()
	tr := NewMemoryTransport(bus, logger.NopLogger())
	require.NoError(t, tr.Connect(context.Background()))
	return tr
}

func TestMemoryTransport_PublishSubscribe(t *testing.T) {
	ctx := context.Background()
	tr := connectedMemory(t, NewBus())

	require.NoError(t, tr.Publish(ctx, "anss", []byte("one")))
	require.NoError(t, tr.Publish(ctx, "other", []byte("x")))

	c := &collector{}
	sub, err := tr.Subscribe(ctx, "anss", 0, c.handle)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, tr.Publish(ctx, "anss", []byte("two")))

	require.Eventually(t, func() bool { return len(c.sequences()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{1, 2}, c.sequences())
	assert.Equal(t, "two", string(c.msgs[1].Data))
	assert.False(t, c.msgs[0].Timestamp.IsZero())
}

func TestMemoryTransport_StartSequence(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()
	tr := connectedMemory(t, bus)

	for i := 0; i < 5; i++ {
		bus.Append("anss", []byte{byte(i)}, nil)
	}

	c := &collector{}
	sub, err := tr.Subscribe(ctx, "anss", 4, c.handle)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return len(c.sequences()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint64{4, 5}, c.sequences())
}

func TestMemoryTransport_CloseWaitsForHandler(t *testing.T) {
	ctx := context.Background()
	tr := connectedMemory(t, NewBus())

	started := make(chan struct{})
	release := make(chan struct{})
	var finished bool
	var calls int
	var mu sync.Mutex

	sub, err := tr.Subscribe(ctx, "anss", 1, func(context.Context, Message) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		<-release
		mu.Lock()
		finished = true
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, tr.Publish(ctx, "anss", []byte("one")))
	<-started

	closed := make(chan struct{})
	go func() {
		_ = sub.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while handler was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-closed

	require.NoError(t, tr.Publish(ctx, "anss", []byte("two")))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished)
	assert.Equal(t, 1, calls)
}

func TestMemoryTransport_NotConnected(t *testing.T) {
	tr := NewMemoryTransport(NewBus(), logger.NopLogger())
	err := tr.Publish(context.Background(), "anss", nil)
	assert.ErrorIs(t, err, pkgerrors.ErrTransport)

	_, err = tr.Subscribe(context.Background(), "anss", 1, func(context.Context, Message) {})
	assert.ErrorIs(t, err, pkgerrors.ErrTransport)
}

func TestMemoryTransport_InjectedFailure(t *testing.T) {
	tr := connectedMemory(t, NewBus())
	tr.FailPublishes(context.DeadlineExceeded)
	assert.ErrorIs(t, tr.Publish(context.Background(), "anss", nil), pkgerrors.ErrTransportTimeout)

	tr.FailPublishes(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, tr.Publish(ctx, "anss", nil), pkgerrors.ErrInterrupted)
}

type netTimeout struct{}

func (netTimeout) Error() string   { return "i/o timeout" }
func (netTimeout) Timeout() bool   { return true }
func (netTimeout) Temporary() bool { return true }

var _ net.Error = netTimeout{}

func TestClassify(t *testing.T) {
	sentinel := errors.New("custom timeout")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"canceled", context.Canceled, pkgerrors.ErrInterrupted.Code},
		{"deadline", context.DeadlineExceeded, pkgerrors.ErrTransportTimeout.Code},
		{"net timeout", netTimeout{}, pkgerrors.ErrTransportTimeout.Code},
		{"predicate", sentinel, pkgerrors.ErrTransportTimeout.Code},
		{"other", errors.New("connection refused"), pkgerrors.ErrTransport.Code},
		{"already coded", pkgerrors.ErrEncoding, pkgerrors.ErrEncoding.Code},
	}

	isSentinel := func(err error) bool { return errors.Is(err, sentinel) }
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pkgerrors.KindOf(classify(tt.err, isSentinel)))
		})
	}
	assert.NoError(t, classify(nil))
}

func TestNewTransport(t *testing.T) {
	n := config.NotificationConfig{ServerHost: "bus.example", ClusterID: "pdl", ClientID: "c1", Subject: "anss"}

	tr, err := NewTransport(config.BrokerConfig{Type: "kafka"}, n, logger.NopLogger())
	require.NoError(t, err)
	kafkaTr, ok := tr.(*KafkaTransport)
	require.True(t, ok)
	assert.Equal(t, []string{"bus.example:9092"}, kafkaTr.opts.Brokers)

	tr, err = NewTransport(config.BrokerConfig{Type: "nats"}, n, logger.NopLogger())
	require.NoError(t, err)
	natsTr, ok := tr.(*NATSTransport)
	require.True(t, ok)
	assert.Equal(t, "nats://bus.example:4222", natsTr.opts.URL)
	assert.Equal(t, "pdl", natsTr.opts.Stream)
	assert.Equal(t, []string{"anss"}, natsTr.opts.Subjects)

	tr, err = NewTransport(config.BrokerConfig{Type: "memory"}, n, logger.NopLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryTransport{}, tr)

	_, err = NewTransport(config.BrokerConfig{Type: "rabbitmq"}, n, logger.NopLogger())
	assert.Error(t, err)
}
