package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const snapshotExt = ".json"

// FileStore implements Store with one file per snapshot key. Every write goes
// to a temporary file that is renamed over the target, so a snapshot on disk
// is always either the previous or the new value.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("file store: creating %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Get returns the snapshot stored at key.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get snapshot: %w", ctx.Err())
	default:
	}

	if err := checkKey(key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	return data, nil
}

// Set replaces the snapshot stored at key.
func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("set snapshot: %w", ctx.Err())
	default:
	}

	if err := checkKey(key); err != nil {
		return err
	}
	if value == nil {
		return ErrNilValue
	}

	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("set snapshot: writing: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("set snapshot: syncing: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("set snapshot: closing: %w", err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("set snapshot: renaming: %w", err)
	}

	return nil
}

// Delete removes the snapshot stored at key.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("delete snapshot: %w", ctx.Err())
	default:
	}

	if err := checkKey(key); err != nil {
		return err
	}

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// path maps a key to a file name that is safe on every platform.
func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+snapshotExt)
}
