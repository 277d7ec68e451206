package index

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pdlbus/internal/notification"
	"pdlbus/internal/product"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLiteIndex is the default local index. Times are stored as unix
// milliseconds.
type SQLiteIndex struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteIndex{db: db, now: time.Now}, nil
}

func (s *SQLiteIndex) Lookup(ctx context.Context, id product.ID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM notifications WHERE urn = ?`, id.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite lookup failed: %w", err)
	}
	return true, nil
}

func (s *SQLiteIndex) Record(ctx context.Context, env *notification.Envelope) error {
	e := newEntry(env, s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (urn, source, type, code, update_time, product_url, expires)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (urn) DO UPDATE SET product_url = excluded.product_url, expires = excluded.expires`,
		e.Key, e.ID.Source, e.ID.Type, e.ID.Code, e.ID.UpdateTime.UnixMilli(), e.ProductURL, e.Expires.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite record failed: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) RemoveExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE expires < ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite remove expired failed: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite count failed: %w", err)
	}
	return n, nil
}

func (s *SQLiteIndex) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
