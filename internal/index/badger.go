package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"pdlbus/internal/constants"
	"pdlbus/internal/notification"
	"pdlbus/internal/product"
)

// BadgerIndex is an embedded alternative to SQLite. Entries carry a badger
// TTL; RemoveExpired only reclaims value log space.
type BadgerIndex struct {
	db     *badger.DB
	prefix []byte
	now    func() time.Time
}

func OpenBadger(dir string) (*BadgerIndex, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.NumVersionsToKeep = 1
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerIndex, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerIndex{
		db:     db,
		prefix: []byte(constants.CacheKeyPrefixNotification),
		now:    time.Now,
	}, nil
}

func (b *BadgerIndex) key(id product.ID) []byte {
	return append(append([]byte(nil), b.prefix...), id.String()...)
}

func (b *BadgerIndex) Lookup(_ context.Context, id product.ID) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(b.key(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("badger lookup failed: %w", err)
	}
	return true, nil
}

func (b *BadgerIndex) Record(_ context.Context, env *notification.Envelope) error {
	now := b.now()
	e := newEntry(env, now)
	err := b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(b.key(env.ID), []byte(e.ProductURL)).WithTTL(e.Expires.Sub(now))
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("badger record failed: %w", err)
	}
	return nil
}

func (b *BadgerIndex) RemoveExpired(context.Context, time.Time) (int64, error) {
	err := b.db.RunValueLogGC(0.5)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
		return 0, fmt.Errorf("badger value log gc failed: %w", err)
	}
	return 0, nil
}

func (b *BadgerIndex) Count(_ context.Context) (int64, error) {
	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = b.prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger count failed: %w", err)
	}
	return count, nil
}

func (b *BadgerIndex) Close() error {
	return b.db.Close()
}
