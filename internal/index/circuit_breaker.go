package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pdlbus/internal/config"
	"pdlbus/internal/notification"
	"pdlbus/internal/product"
	"pdlbus/pkg/circuitbreaker"
)

// CircuitBreakerIndex stops calling a remote index after repeated failures.
// While the breaker is open Lookup fails fast and the receiver treats the
// notification as fresh.
type CircuitBreakerIndex struct {
	index Index
	name  string
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerIndex(index Index, name string, cfg config.CircuitBreakerConfig) *CircuitBreakerIndex {
	c := &CircuitBreakerIndex{index: index, name: name}
	if cfg.Enabled {
		c.cb = circuitbreaker.NewWrapper(circuitbreaker.FromConfig(name, cfg))
	}
	return c
}

func guard[T any](ctx context.Context, c *CircuitBreakerIndex, fn func() (T, error)) (T, error) {
	if c.cb == nil {
		return fn()
	}
	result, err := circuitbreaker.Execute(ctx, c.cb, fn)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return result, fmt.Errorf("%s: %w", c.name, err)
	}
	return result, err
}

func (c *CircuitBreakerIndex) Lookup(ctx context.Context, id product.ID) (bool, error) {
	return guard(ctx, c, func() (bool, error) {
		return c.index.Lookup(ctx, id)
	})
}

func (c *CircuitBreakerIndex) Record(ctx context.Context, env *notification.Envelope) error {
	_, err := guard(ctx, c, func() (struct{}, error) {
		return struct{}{}, c.index.Record(ctx, env)
	})
	return err
}

func (c *CircuitBreakerIndex) RemoveExpired(ctx context.Context, now time.Time) (int64, error) {
	return guard(ctx, c, func() (int64, error) {
		return c.index.RemoveExpired(ctx, now)
	})
}

func (c *CircuitBreakerIndex) Count(ctx context.Context) (int64, error) {
	return guard(ctx, c, func() (int64, error) {
		return c.index.Count(ctx)
	})
}

func (c *CircuitBreakerIndex) Close() error {
	return c.index.Close()
}

func (c *CircuitBreakerIndex) State() string {
	if c.cb == nil {
		return "disabled"
	}
	return c.cb.State().String()
}

func (c *CircuitBreakerIndex) IsOpen() bool {
	return c.cb != nil && c.cb.IsOpen()
}
