package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/deusflow/technews/internal/fsutil"
)

// FileStore keeps the digest in a JSON file (latest.json).
type FileStore struct {
	path string
}

// NewFileStore creates a store at path. The file is created on first publish.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) ReadLatest(ctx context.Context) (Digest, error) {
	var d Digest
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, fmt.Errorf("failed to read digest file: %w", err)
	}
	if len(data) == 0 {
		return d, ErrNotFound
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("failed to parse digest file: %w", err)
	}
	return d, nil
}

func (s *FileStore) Publish(ctx context.Context, d Digest) error {
	if err := d.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal digest: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write digest file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
