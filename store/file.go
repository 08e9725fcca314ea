package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// FileStore persists state as a small JSON file. Writes go through a
// temporary file and rename so a crash never leaves a torn record.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to path. Parent directories are
// created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the state file.
func (f *FileStore) Save(_ context.Context, s State) error {
	data, err := sonic.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode state: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: create state directory: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write state: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("store: replace state: %w", err)
	}
	return nil
}

// Load reads the state file. A missing file reports found=false.
func (f *FileStore) Load(_ context.Context) (State, bool, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("store: read state: %w", err)
	}

	var s State
	if err := sonic.Unmarshal(data, &s); err != nil {
		return State{}, false, fmt.Errorf("store: decode state: %w", err)
	}
	return s, true, nil
}

// Close is a no-op for file stores.
func (f *FileStore) Close() error { return nil }
