package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/events"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestCrossContextSync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus(nil)
	defer bus.Shutdown()

	// Two contexts over the same bus, e.g. the panel and the broker.
	panel := New(nil, nil)
	broker := New(nil, nil)
	panel.AttachBus(ctx, bus, 10*time.Millisecond)
	broker.AttachBus(ctx, bus, 10*time.Millisecond)

	var syncEvents int64
	tap := bus.Subscribe(ctx, events.TypeFilter(events.StateSync))
	go func() {
		for range tap {
			atomic.AddInt64(&syncEvents, 1)
		}
	}()

	panel.Set("chat.intent", "email-reply")

	waitFor(t, time.Second, func() bool {
		return broker.Get("chat.intent") == "email-reply"
	})

	// The applied batch must not re-broadcast: exactly one StateSync for
	// the write, no loop between the two contexts.
	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt64(&syncEvents); n != 1 {
		t.Errorf("observed %d StateSync events, want exactly 1 (no broadcast loop)", n)
	}
}

func TestSyncDebounceBatchesPaths(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus(nil)
	defer bus.Shutdown()

	s := New(nil, nil)
	s.AttachBus(ctx, bus, 20*time.Millisecond)

	tap := bus.Subscribe(ctx, events.TypeFilter(events.StateSync))

	s.Set("a", 1)
	s.Set("b", 2)
	s.Set("c", 3)

	select {
	case e := <-tap:
		payload := e.Payload.(events.SyncPayload)
		if len(payload.Updates) != 3 {
			t.Errorf("expected one batched broadcast with 3 paths, got %v", payload.Updates)
		}
	case <-time.After(time.Second):
		t.Fatal("no broadcast")
	}

	select {
	case e := <-tap:
		t.Errorf("unexpected second broadcast: %#v", e.Payload)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	storage := browser.NewMemoryStorage()
	allow := []string{"auth", "chat.selectedFolder", "userPreferences"}

	s := New(nil, nil)
	if err := s.EnablePersistence(storage, allow, 5*time.Millisecond); err != nil {
		t.Fatalf("EnablePersistence: %v", err)
	}

	s.Set("auth.tenant", "acme")
	s.Set("chat.selectedFolder", "folder-9")
	s.Set("chat.messages", []any{"not persisted"})
	s.FlushPersistence()

	// Cold start: a fresh store over the same storage.
	fresh := New(map[string]any{"ui": map[string]any{"view": "chat"}}, nil)
	if err := fresh.EnablePersistence(storage, allow, 5*time.Millisecond); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}

	if got := fresh.Get("auth.tenant"); got != "acme" {
		t.Errorf("rehydrated auth.tenant = %v, want acme", got)
	}
	if got := fresh.Get("chat.selectedFolder"); got != "folder-9" {
		t.Errorf("rehydrated folder = %v", got)
	}
	if got := fresh.Get("chat.messages"); got != nil {
		t.Errorf("non-allow-listed path leaked into persistence: %v", got)
	}
	// Defaults outside the persisted slice survive the merge.
	if got := fresh.Get("ui.view"); got != "chat" {
		t.Errorf("default lost in merge: %v", got)
	}
}

func TestReceivedSyncIsPersistedButNotRebroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus(nil)
	defer bus.Shutdown()
	storage := browser.NewMemoryStorage()

	s := New(nil, nil)
	s.AttachBus(ctx, bus, 10*time.Millisecond)
	if err := s.EnablePersistence(storage, []string{"auth"}, 5*time.Millisecond); err != nil {
		t.Fatalf("EnablePersistence: %v", err)
	}

	tap := bus.Subscribe(ctx, events.TypeFilter(events.StateSync))

	s.ApplySync(map[string]any{"auth.tenant": "beta"})
	s.FlushPersistence()

	if got := s.Get("auth.tenant"); got != "beta" {
		t.Errorf("sync not applied: %v", got)
	}
	raw, ok, _ := storage.Get(ctx, browser.KeyStoreState)
	if !ok || raw == "" {
		t.Error("received sync was not persisted")
	}
	select {
	case e := <-tap:
		t.Errorf("received sync re-broadcast: %#v", e.Payload)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestReloadPersistenceAppliesExternalRewrite(t *testing.T) {
	ctx := context.Background()
	storage := browser.NewMemoryStorage()
	allow := []string{"auth", "chat.selectedFolder"}

	s := New(nil, nil)
	if err := s.EnablePersistence(storage, allow, 5*time.Millisecond); err != nil {
		t.Fatalf("EnablePersistence: %v", err)
	}
	s.Set("auth.tenant", "acme")
	s.Set("chat.selectedFolder", "folder-1")
	s.FlushPersistence()

	// Another context rewrites the persisted slice behind our back.
	rewritten := `{"auth":{"tenant":"beta"},"chat.selectedFolder":"folder-9","chat.messages":["smuggled"]}`
	if err := storage.Set(ctx, browser.KeyStoreState, rewritten); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var notified Change
	s.Subscribe("chat.selectedFolder", func(c Change) { notified = c })

	s.ReloadPersistence()

	if got := s.Get("auth.tenant"); got != "beta" {
		t.Errorf("auth.tenant = %v, want beta", got)
	}
	if got := s.Get("chat.selectedFolder"); got != "folder-9" {
		t.Errorf("chat.selectedFolder = %v, want folder-9", got)
	}
	if got := s.Get("chat.messages"); got != nil {
		t.Errorf("non-allow-listed path applied from reload: %v", got)
	}
	if notified.Value != "folder-9" {
		t.Errorf("subscriber saw %v, want folder-9 on reload", notified.Value)
	}
}
