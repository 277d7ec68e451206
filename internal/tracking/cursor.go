package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/facebookgo/atomicfile"
)

// Cursor records the last processed bus sequence for one subscription.
// A fresh subscription has Sequence 0 and starts at sequence 1.
type Cursor struct {
	ServerHost string `json:"serverHost"`
	ServerPort int    `json:"serverPort"`
	ClusterID  string `json:"clusterId"`
	ClientID   string `json:"clientId"`
	Subject    string `json:"subject"`
	Sequence   uint64 `json:"sequence"`
}

// Matches reports whether c was recorded for the same subscription.
func (c Cursor) Matches(clusterID, clientID, subject string) bool {
	return c.ClusterID == clusterID && c.ClientID == clientID && c.Subject == subject
}

// Next is the first sequence a resumed subscription should receive.
func (c Cursor) Next() uint64 {
	return c.Sequence + 1
}

type Store interface {
	// Load returns ErrNoCursor when nothing has been saved yet.
	Load(ctx context.Context) (Cursor, error)
	Save(ctx context.Context, c Cursor) error
}

var ErrNoCursor = errors.New("no tracking cursor")

// FileStore keeps the cursor as a small JSON file, replaced atomically on
// every save so a crash never leaves a torn cursor behind.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(_ context.Context) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Cursor{}, ErrNoCursor
		}
		return Cursor{}, fmt.Errorf("failed to read tracking file %s: %w", s.path, err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("failed to parse tracking file %s: %w", s.path, err)
	}
	return c, nil
}

func (s *FileStore) Save(_ context.Context, c Cursor) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode cursor: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create tracking directory: %w", err)
		}
	}

	f, err := atomicfile.New(s.path, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open tracking file %s: %w", s.path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Abort()
		return fmt.Errorf("failed to write tracking file %s: %w", s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to commit tracking file %s: %w", s.path, err)
	}
	return nil
}

// MemoryStore is a Store for tests.
type MemoryStore struct {
	mu     sync.Mutex
	cursor *Cursor
	saves  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor == nil {
		return Cursor{}, ErrNoCursor
	}
	return *s.cursor, nil
}

func (s *MemoryStore) Save(_ context.Context, c Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = &c
	s.saves++
	return nil
}

func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
