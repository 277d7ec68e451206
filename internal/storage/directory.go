package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/facebookgo/atomicfile"

	"pdlbus/internal/product"
)

// DirectoryStore writes product documents below Dir in the layout expected
// by DefaultURLTemplate.
type DirectoryStore struct {
	Dir string
}

func NewDirectoryStore(dir string) *DirectoryStore {
	return &DirectoryStore{Dir: dir}
}

// Store writes p and returns the file path.
func (s *DirectoryStore) Store(p *product.Product) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode product %s: %w", p.ID, err)
	}

	path := filepath.Join(s.Dir, filepath.FromSlash(RelativePath(p.ID)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create product directory: %w", err)
	}

	f, err := atomicfile.New(path, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create product file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Abort()
		return "", fmt.Errorf("failed to write product file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to commit product file: %w", err)
	}
	return path, nil
}

func (s *DirectoryStore) Load(id product.ID) (*product.Product, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, filepath.FromSlash(RelativePath(id))))
	if err != nil {
		return nil, err
	}
	var p product.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode product %s: %w", id, err)
	}
	return &p, nil
}
