package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pdlbus/internal/config"
	pkgerrors "pdlbus/pkg/errors"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{"succeeds first time", 0, nil, 1, false},
		{"succeeds after transient failures", 2, pkgerrors.ErrTransportTimeout, 3, false},
		{"gives up after max attempts", 10, pkgerrors.ErrTransportTimeout, 3, true},
		{"stops on fatal error", 10, pkgerrors.ErrEncoding, 1, true},
		{"plain errors are retried", 1, errors.New("flaky"), 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), fastPolicy(3), func() error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryWithCallback(t *testing.T) {
	var attempts []int
	calls := 0
	err := RetryWithCallback(context.Background(), fastPolicy(3), func() error {
		calls++
		if calls < 3 {
			return pkgerrors.ErrTransport
		}
		return nil
	}, func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	})

	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, Policy{MaxAttempts: 5, InitialInterval: time.Second, MaxInterval: time.Second, Multiplier: 1}, func() error {
		calls++
		return pkgerrors.ErrTransport
	})
	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(config.RetryConfig{MaxAttempts: 7, InitialInterval: 50 * time.Millisecond})
	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, p.InitialInterval)
	assert.Equal(t, DefaultPolicy().MaxInterval, p.MaxInterval)
	assert.Equal(t, DefaultPolicy().Multiplier, p.Multiplier)
}
