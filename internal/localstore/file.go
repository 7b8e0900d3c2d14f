package localstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File persists each key as its own JSON document under a directory. Writes
// go through a temp file plus rename so readers never observe partial
// documents.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile creates the backing directory when needed and returns the store.
func NewFile(dir string) (*File, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, errors.New("localstore: directory is required")
	}
	if err := os.MkdirAll(trimmed, 0o700); err != nil {
		return nil, fmt.Errorf("localstore: create %s: %w", trimmed, err)
	}
	return &File{dir: trimmed}, nil
}

// Get returns the stored value when present.
func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	path, err := f.pathFor(key)
	if err != nil {
		return nil, false, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("localstore: read %s: %w", key, err)
	}
	return raw, true, nil
}

// Set atomically overwrites the value for the key.
func (f *File) Set(_ context.Context, key string, value []byte) error {
	path, err := f.pathFor(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("localstore: temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("localstore: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("localstore: close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("localstore: replace %s: %w", key, err)
	}
	return nil
}

// Delete removes the key; deleting an absent key is not an error.
func (f *File) Delete(_ context.Context, key string) error {
	path, err := f.pathFor(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localstore: delete %s: %w", key, err)
	}
	return nil
}

// Close is a no-op for the file store.
func (f *File) Close() error { return nil }

func (f *File) pathFor(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", ErrInvalidKey
	}
	for _, r := range trimmed {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-' {
			continue
		}
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(f.dir, trimmed+".json"), nil
}
