package browser

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.toml")

	fs, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	if err := fs.Set(ctx, KeyLastKnownTenant, "acme"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := fs.Set(ctx, KeyAppState, `{"open":false,"view":"chat"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Reopen from disk.
	fs2, err := NewFileStorage(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, ok, err := fs2.Get(ctx, KeyLastKnownTenant)
	if err != nil || !ok || v != "acme" {
		t.Errorf("Get(lastKnownTenant) = %q, %v, %v; want acme", v, ok, err)
	}

	if err := fs2.Delete(ctx, KeyAppState); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := fs2.Get(ctx, KeyAppState); ok {
		t.Error("expected appState gone after delete")
	}
}

func TestMemoryCookiesWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewMemoryCookies()
	ch, err := store.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	store.Put(Cookie{Name: "cgpt-session", Domain: "acme.company-gpt.com", LastAccessed: 100})
	change := <-ch
	if change.Removed || change.Cookie.Domain != "acme.company-gpt.com" {
		t.Errorf("unexpected change: %+v", change)
	}

	store.Remove("cgpt-session", "acme.company-gpt.com")
	change = <-ch
	if !change.Removed {
		t.Errorf("expected removal, got %+v", change)
	}

	got, err := store.List(ctx, ".company-gpt.com", "cgpt-session")
	if err != nil || len(got) != 0 {
		t.Errorf("List after removal = %v, %v; want empty", got, err)
	}
}

func TestMemoryStorageWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	store := NewMemoryStorage()
	ch, err := store.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := store.Set(ctx, KeyStoreState, `{"auth":{"tenant":"acme"}}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no signal after write")
	}

	// Rewriting the same value is not a change.
	if err := store.Set(ctx, KeyStoreState, `{"auth":{"tenant":"acme"}}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	select {
	case <-ch:
		t.Error("signal for unchanged value")
	case <-time.After(20 * time.Millisecond):
	}

	if err := store.Delete(ctx, KeyStoreState); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no signal after delete")
	}

	cancel()
	select {
	case _, open := <-ch:
		if open {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
