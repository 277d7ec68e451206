package index

import (
	"context"
	"time"

	"pdlbus/internal/notification"
	"pdlbus/internal/product"
	"pdlbus/pkg/metrics"
)

type instrumented struct {
	Index
	backend string
}

// Instrument records operation counts and latencies of idx under backend.
func Instrument(idx Index, backend string) Index {
	return &instrumented{Index: idx, backend: backend}
}

func (i *instrumented) observe(operation string, start time.Time, err error) {
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}
	metrics.IncIndexOperation(i.backend, operation, status)
	metrics.ObserveIndexOperationDuration(i.backend, operation, time.Since(start))
}

func (i *instrumented) Lookup(ctx context.Context, id product.ID) (bool, error) {
	start := time.Now()
	found, err := i.Index.Lookup(ctx, id)
	i.observe("lookup", start, err)
	return found, err
}

func (i *instrumented) Record(ctx context.Context, env *notification.Envelope) error {
	start := time.Now()
	err := i.Index.Record(ctx, env)
	i.observe("record", start, err)
	return err
}

func (i *instrumented) RemoveExpired(ctx context.Context, now time.Time) (int64, error) {
	start := time.Now()
	n, err := i.Index.RemoveExpired(ctx, now)
	i.observe("remove_expired", start, err)
	metrics.AddIndexExpiredRemoved(i.backend, n)
	return n, err
}
