// Package storage provides file-based JSON storage keyed by path slices.
//
// Values live under basePath as <segment>/<segment>/<key>.json. Writes go
// through a temp file and rename so a crash never leaves a partially written
// value, and each file is guarded by an advisory flock so concurrent server
// processes sharing a data directory don't interleave writes.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned when no value exists at the requested path.
var ErrNotFound = errors.New("not found")

// Storage is a file-backed JSON store.
type Storage struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*fileLock
}

// New creates a Storage rooted at basePath.
func New(basePath string) *Storage {
	return &Storage{
		basePath: basePath,
		locks:    make(map[string]*fileLock),
	}
}

func (s *Storage) filePath(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...) + ".json"
}

func (s *Storage) dirPath(path []string) string {
	parts := append([]string{s.basePath}, path...)
	return filepath.Join(parts...)
}

// Get reads the value at path into v.
func (s *Storage) Get(ctx context.Context, path []string, v any) error {
	data, err := os.ReadFile(s.filePath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", strings.Join(path, "/"), err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", strings.Join(path, "/"), err)
	}

	return nil
}

// Put writes v at path, creating parent directories as needed.
func (s *Storage) Put(ctx context.Context, path []string, v any) error {
	filePath := s.filePath(path)

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	lock := s.lockFor(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", strings.Join(path, "/"), err)
	}

	// Temp file plus rename keeps the write atomic.
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// Delete removes the value at path. Deleting a missing value is not an error.
func (s *Storage) Delete(ctx context.Context, path []string) error {
	filePath := s.filePath(path)

	lock := s.lockFor(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", strings.Join(path, "/"), err)
	}
	return nil
}

// DeleteAll removes every value and subdirectory under path.
func (s *Storage) DeleteAll(ctx context.Context, path []string) error {
	if err := os.RemoveAll(s.dirPath(path)); err != nil {
		return fmt.Errorf("delete subtree %s: %w", strings.Join(path, "/"), err)
	}
	return nil
}

// List returns the keys (and subdirectory names) directly under path, in
// lexical order.
func (s *Storage) List(ctx context.Context, path []string) ([]string, error) {
	entries, err := os.ReadDir(s.dirPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case entry.IsDir():
			keys = append(keys, name)
		case strings.HasSuffix(name, ".json"):
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Scan calls fn for every value directly under path, in lexical key order.
// ULID keys therefore come back in creation order.
func (s *Storage) Scan(ctx context.Context, path []string, fn func(key string, data json.RawMessage) error) error {
	dirPath := s.dirPath(path)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dirPath, name))
		if err != nil {
			continue // raced with a concurrent delete
		}
		if err := fn(strings.TrimSuffix(name, ".json"), json.RawMessage(data)); err != nil {
			return err
		}
	}

	return nil
}

// Exists reports whether a value exists at path.
func (s *Storage) Exists(ctx context.Context, path []string) bool {
	_, err := os.Stat(s.filePath(path))
	return err == nil
}

func (s *Storage) lockFor(filePath string) *fileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[filePath]
	if !ok {
		lock = &fileLock{path: filePath}
		s.locks[filePath] = lock
	}
	return lock
}
