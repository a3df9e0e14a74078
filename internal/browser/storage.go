package browser

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
)

// FileStorage is a Storage backed by a single TOML file. All three contexts
// point at the same file; fsnotify lets a context observe rewrites made by
// another one.
type FileStorage struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

// NewFileStorage opens (or creates) the TOML state file at path.
func NewFileStorage(path string) (*FileStorage, error) {
	fs := &FileStorage{path: path, values: make(map[string]string)}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStorage) load() error {
	var values map[string]string
	if _, err := toml.DecodeFile(fs.path, &values); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to decode state file %s: %w", fs.path, err)
	}
	if values != nil {
		fs.values = values
	}
	return nil
}

func (fs *FileStorage) flush() error {
	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	file, err := os.Create(fs.path)
	if err != nil {
		return fmt.Errorf("failed to create state file %s: %w", fs.path, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	encoder := toml.NewEncoder(writer)
	if err := encoder.Encode(fs.values); err != nil {
		return fmt.Errorf("failed to encode state to %s: %w", fs.path, err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush state file %s: %w", fs.path, err)
	}
	slog.Debug("State saved", "file", fs.path)
	return nil
}

// Get returns the value stored under key.
func (fs *FileStorage) Get(_ context.Context, key string) (string, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v, ok := fs.values[key]
	return v, ok, nil
}

// Set stores value under key and rewrites the file.
func (fs *FileStorage) Set(_ context.Context, key, value string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if old, ok := fs.values[key]; ok && old == value {
		return nil
	}
	fs.values[key] = value
	return fs.flush()
}

// Delete removes key and rewrites the file.
func (fs *FileStorage) Delete(_ context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.values[key]; !ok {
		return nil
	}
	delete(fs.values, key)
	return fs.flush()
}

// Watch reports external rewrites of the state file. Each notification means
// the on-disk state may differ from the in-memory map; Watch reloads before
// notifying so subsequent Gets see the new values.
func (fs *FileStorage) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create state watcher: %w", err)
	}
	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != fs.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				fs.mu.Lock()
				if err := fs.load(); err != nil {
					slog.Warn("State reload failed", "error", err)
				}
				fs.mu.Unlock()
				select {
				case ch <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("State watcher error", "error", err)
			}
		}
	}()
	return ch, nil
}
