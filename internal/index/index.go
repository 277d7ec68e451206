// Package index records which notifications a receiver has already
// delivered. Entries are keyed by product id URN and kept until the
// envelope expires.
package index

import (
	"context"
	"time"

	"pdlbus/internal/constants"
	"pdlbus/internal/notification"
	"pdlbus/internal/product"
)

type Index interface {
	// Lookup reports whether a notification for id has been recorded.
	Lookup(ctx context.Context, id product.ID) (bool, error)
	// Record stores env. Recording the same id twice is not an error.
	Record(ctx context.Context, env *notification.Envelope) error
	// RemoveExpired deletes entries retained past now and returns how many
	// were removed. Backends with native expiry return 0.
	RemoveExpired(ctx context.Context, now time.Time) (int64, error)
	// Count returns the number of live entries.
	Count(ctx context.Context) (int64, error)
	Close() error
}

type entry struct {
	Key        string
	ID         product.ID
	ProductURL string
	Expires    time.Time
}

func newEntry(env *notification.Envelope, now time.Time) entry {
	return entry{
		Key:        env.ID.String(),
		ID:         env.ID,
		ProductURL: env.ProductURL.String(),
		Expires:    retainUntil(env.Expires, now),
	}
}

// retainUntil keeps an entry for at least IndexMinRetention, so a
// redelivered stale envelope is still recognised.
func retainUntil(expires, now time.Time) time.Time {
	floor := now.Add(constants.IndexMinRetention)
	if expires.Before(floor) {
		return product.Truncate(floor)
	}
	return product.Truncate(expires)
}
