package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pdlbus/internal/notification"
	"pdlbus/internal/product"
)

// PostgresIndex expects the notifications table created by
// migrations.MigratePostgres. The *sql.DB is owned by the caller.
type PostgresIndex struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresIndex(db *sql.DB) *PostgresIndex {
	return &PostgresIndex{db: db, now: time.Now}
}

func (p *PostgresIndex) Lookup(ctx context.Context, id product.ID) (bool, error) {
	var one int
	err := p.db.QueryRowContext(ctx, `SELECT 1 FROM notifications WHERE urn = $1`, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres lookup failed: %w", err)
	}
	return true, nil
}

func (p *PostgresIndex) Record(ctx context.Context, env *notification.Envelope) error {
	e := newEntry(env, p.now())
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications (urn, source, type, code, update_time, product_url, expires)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (urn) DO UPDATE SET product_url = EXCLUDED.product_url, expires = EXCLUDED.expires`,
		e.Key, e.ID.Source, e.ID.Type, e.ID.Code, e.ID.UpdateTime, e.ProductURL, e.Expires,
	)
	if err != nil {
		return fmt.Errorf("postgres record failed: %w", err)
	}
	return nil
}

func (p *PostgresIndex) RemoveExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM notifications WHERE expires < $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres remove expired failed: %w", err)
	}
	return res.RowsAffected()
}

func (p *PostgresIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres count failed: %w", err)
	}
	return n, nil
}

func (p *PostgresIndex) Close() error {
	return nil
}
