package store

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/companygpt/sidekick/internal/browser"
)

// persister writes an allow-listed slice of the tree to durable storage
// after every change, debounced alongside the sync broadcast.
type persister struct {
	store     *Store
	storage   browser.Storage
	allowlist []string
	debounce  time.Duration

	mu    sync.Mutex
	dirty bool
	timer *time.Timer
}

// EnablePersistence rehydrates the allow-listed paths from storage (shallow
// merge over the defaults) and starts persisting subsequent changes to them.
func (s *Store) EnablePersistence(storage browser.Storage, allowlist []string, debounce time.Duration) error {
	s.persister = &persister{
		store:     s,
		storage:   storage,
		allowlist: allowlist,
		debounce:  debounce,
	}
	return s.rehydrate(storage, allowlist)
}

func (s *Store) rehydrate(storage browser.Storage, allowlist []string) error {
	raw, ok, err := storage.Get(context.Background(), browser.KeyStoreState)
	if err != nil || !ok || raw == "" {
		return err
	}
	var persisted map[string]any
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		s.logger.Warn("discarding unreadable persisted state", "error", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, path := range allowlist {
		if value, found := persisted[path]; found {
			setPath(s.state, path, value)
		}
	}
	s.invalidateAllComputed()
	return nil
}

func (p *persister) covers(path string) bool {
	if path == "*" {
		return true
	}
	for _, allowed := range p.allowlist {
		if allowed == path || strings.HasPrefix(path, allowed+".") || strings.HasPrefix(allowed, path+".") {
			return true
		}
	}
	return false
}

func (p *persister) noteChange(path string) {
	if !p.covers(path) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dirty = true
	if p.timer == nil {
		p.timer = time.AfterFunc(p.debounce, p.flush)
	}
}

func (p *persister) flush() {
	p.mu.Lock()
	p.dirty = false
	p.timer = nil
	p.mu.Unlock()

	slice := make(map[string]any, len(p.allowlist))
	for _, path := range p.allowlist {
		if value := p.store.Get(path); value != nil {
			slice[path] = value
		}
	}
	data, err := json.Marshal(slice)
	if err != nil {
		p.store.logger.Warn("failed to encode persisted state", "error", err)
		return
	}
	if err := p.storage.Set(context.Background(), browser.KeyStoreState, string(data)); err != nil {
		p.store.logger.Warn("failed to persist state", "error", err)
	}
}

// ReloadPersistence re-reads the persisted slice after another context
// rewrote it and applies the allow-listed paths. The writes go through the
// sync guard, so they notify subscribers without re-broadcasting.
func (s *Store) ReloadPersistence() {
	p := s.persister
	if p == nil {
		return
	}
	raw, ok, err := p.storage.Get(context.Background(), browser.KeyStoreState)
	if err != nil || !ok || raw == "" {
		return
	}
	var persisted map[string]any
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		s.logger.Warn("discarding unreadable persisted state", "error", err)
		return
	}
	updates := make(map[string]any, len(persisted))
	for _, path := range p.allowlist {
		if value, found := persisted[path]; found {
			updates[path] = value
		}
	}
	s.ApplySync(updates)
}

// FlushPersistence forces an immediate write of the persisted slice; used
// on shutdown and by tests.
func (s *Store) FlushPersistence() {
	if s.persister != nil {
		s.persister.flush()
	}
}
