package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"navdir/internal/domain"

	"github.com/fsnotify/fsnotify"
)

// Entry is the cached copy of the document. ETag is nil until the server has
// been reached; MutatedAtMs is the time of the last successful local save.
type Entry struct {
	JSON        string  `json:"json"`
	ETag        *string `json:"etag"`
	MutatedAtMs *int64  `json:"mutatedAtMs"`
}

// FileCache persists one Entry as a JSON file. Every process that points at
// the same path shares it.
type FileCache struct {
	path string
}

func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

func (c *FileCache) Path() string {
	return c.path
}

// Load returns the cached entry, or nil when the file is missing or does not
// hold a valid document.
func (c *FileCache) Load() (*Entry, error) {
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}
	return decodeEntry(raw), nil
}

// Store replaces the cache file atomically.
func (c *FileCache) Store(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(c.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}

// Watch calls fn with every valid entry written to the cache file by any
// process, until ctx is done. Invalid or deleted contents are skipped.
func (c *FileCache) Watch(ctx context.Context, fn func(Entry)) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create cache watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: the file itself is replaced on every write.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch cache dir %q: %w", dir, err)
	}

	target := filepath.Clean(c.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Create|fsnotify.Write) {
				continue
			}
			entry, err := c.Load()
			if err != nil || entry == nil {
				continue
			}
			fn(*entry)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("cache watcher: %w", err)
		}
	}
}

func decodeEntry(raw []byte) *Entry {
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil
	}
	var doc any
	if err := json.Unmarshal([]byte(e.JSON), &doc); err != nil || !domain.IsNavConfig(doc) {
		return nil
	}
	return &e
}
