package store

import (
	"context"
	"sync"
	"time"

	"github.com/companygpt/sidekick/internal/events"
)

// syncer broadcasts local writes to the other contexts over the event bus,
// debounced per batch; receives are guarded so an applied batch is never
// re-broadcast.
type syncer struct {
	store    *Store
	bus      *events.Bus
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// AttachBus wires the store to the cross-context event bus. Local writes
// are announced as StateSync events after the debounce window; StateSync
// events originating from other store instances are applied without
// re-broadcast.
func (s *Store) AttachBus(ctx context.Context, bus *events.Bus, debounce time.Duration) {
	s.syncer = &syncer{
		store:    s,
		bus:      bus,
		debounce: debounce,
		pending:  make(map[string]struct{}),
	}

	ch := bus.Subscribe(ctx, events.TypeFilter(events.StateSync))
	go func() {
		for e := range ch {
			payload, ok := e.Payload.(events.SyncPayload)
			if !ok || payload.Key == s.id {
				continue
			}
			s.ApplySync(payload.Updates)
		}
	}()
}

// ApplySync applies a batch received from another context. The re-entry
// guard keeps the applied writes from broadcasting back.
func (s *Store) ApplySync(updates map[string]any) {
	s.mu.Lock()
	s.applyingSync = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.applyingSync = false
		s.mu.Unlock()
	}()

	for path, value := range updates {
		if err := s.set(path, value, writeOpts{fromSync: true, skipMiddleware: true, skipUndo: true}); err != nil {
			s.logger.Warn("sync apply failed", "path", path, "error", err)
		}
	}
}

func (sy *syncer) noteChange(path string) {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	if path == "*" {
		// Reset: the whole tree goes out on the next flush.
		sy.pending = map[string]struct{}{"*": {}}
	} else if _, all := sy.pending["*"]; !all {
		sy.pending[path] = struct{}{}
	}
	if sy.timer == nil {
		sy.timer = time.AfterFunc(sy.debounce, sy.flush)
	}
}

func (sy *syncer) flush() {
	sy.mu.Lock()
	pending := sy.pending
	sy.pending = make(map[string]struct{})
	sy.timer = nil
	sy.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	updates := make(map[string]any, len(pending))
	if _, all := pending["*"]; all {
		for key, value := range sy.store.Snapshot() {
			updates[key] = value
		}
	} else {
		for path := range pending {
			updates[path] = sy.store.Get(path)
		}
	}

	sy.bus.Publish(events.StateSync, events.SyncPayload{Key: sy.store.id, Updates: updates})
}
