package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileBackend stores one file per key under dir/namespace. File names are
// the base64url form of the key so any key is a safe single path element.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) path(namespace, key string) string {
	return filepath.Join(f.dir, namespace, base64.RawURLEncoding.EncodeToString([]byte(key)))
}

func (f *FileBackend) Get(_ context.Context, namespace, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(namespace, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrMissing
	}
	return data, err
}

// Put writes through a temp file and rename so readers never observe a
// partial value
func (f *FileBackend) Put(_ context.Context, namespace, key string, value []byte) error {
	dir := filepath.Join(f.dir, namespace)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(namespace, key))
}

func (f *FileBackend) Delete(_ context.Context, namespace, key string) error {
	err := os.Remove(f.path(namespace, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (f *FileBackend) List(_ context.Context, namespace string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.dir, namespace))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		key, err := base64.RawURLEncoding.DecodeString(e.Name())
		if err != nil {
			continue
		}
		keys = append(keys, string(key))
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileBackend) Close() error { return nil }
