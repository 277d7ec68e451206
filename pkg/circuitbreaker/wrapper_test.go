package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdlbus/internal/config"
)

func TestFromConfig(t *testing.T) {
	cfg := FromConfig("index", config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Timeout:      time.Second,
		FailureRatio: 1,
		MinRequests:  2,
	})

	assert.Equal(t, "index", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Interval)
	assert.False(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 1, TotalFailures: 1}))
	assert.True(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 2, TotalFailures: 2}))
}

func TestExecute(t *testing.T) {
	var transitions []gobreaker.State
	cfg := FromConfig("test", config.CircuitBreakerConfig{FailureRatio: 1, MinRequests: 2, Timeout: time.Hour})
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) { transitions = append(transitions, to) }
	w := NewWrapper(cfg)

	n, err := Execute(context.Background(), w, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_, err = Execute(context.Background(), w, func() (int, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)
	}
	// 4 requests, 3 failures: ratio below 1, still closed.
	assert.False(t, w.IsOpen())

	w2 := NewWrapper(cfg)
	for i := 0; i < 2; i++ {
		_, _ = Execute(context.Background(), w2, func() (int, error) { return 0, boom })
	}
	assert.True(t, w2.IsOpen())

	called := false
	_, err = Execute(context.Background(), w2, func() (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
}

func TestExecute_CanceledContext(t *testing.T) {
	w := NewWrapper(DefaultConfig("ctx"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, w, func() (string, error) { return "x", nil })
	assert.ErrorIs(t, err, context.Canceled)
}
