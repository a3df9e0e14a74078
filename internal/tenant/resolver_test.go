package tenant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/config"
	"github.com/companygpt/sidekick/internal/events"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RootDomain = "company-gpt.com"
	cfg.SessionCookieName = "cgpt-session"
	cfg.CookieDebounce = 30 * time.Millisecond
	return cfg
}

func newTestResolver(cfg *config.Config, cookies browser.CookieStore) (*Resolver, *browser.MemoryStorage) {
	storage := browser.NewMemoryStorage()
	tabs := browser.NewMemoryTabs(browser.Tab{ID: 1, URL: "https://example.org/page"})
	return NewResolver(cfg, cookies, tabs, storage, nil), storage
}

func TestResolveFromCookies(t *testing.T) {
	ctx := context.Background()
	future := float64(time.Now().Add(time.Hour).Unix())
	cookies := browser.NewMemoryCookies(
		browser.Cookie{Name: "cgpt-session", Domain: ".acme.company-gpt.com", LastAccessed: 200, ExpirationDate: future},
		browser.Cookie{Name: "cgpt-session", Domain: ".beta.company-gpt.com", LastAccessed: 100, ExpirationDate: future},
	)
	r, storage := newTestResolver(testConfig(), cookies)

	snap := r.Resolve(ctx, true)
	if snap.Tenant != "acme" || snap.Source != SourceCookie {
		t.Errorf("expected acme from cookie, got %+v", snap)
	}
	if !snap.MultiTenant || len(snap.AvailableTenants) != 2 {
		t.Errorf("expected multi-tenant {acme, beta}, got %v", snap.AvailableTenants)
	}
	if !snap.Authenticated {
		t.Error("expected authenticated with unexpired cookie")
	}

	// Produced labels are written back.
	persisted, ok, _ := storage.Get(ctx, browser.KeyLastKnownTenant)
	if !ok || persisted != "acme" {
		t.Errorf("expected persisted tenant acme, got %q", persisted)
	}
}

func TestResolveTieBreaksOnExpiration(t *testing.T) {
	cookies := browser.NewMemoryCookies(
		browser.Cookie{Name: "cgpt-session", Domain: ".first.company-gpt.com", LastAccessed: 100, ExpirationDate: 500},
		browser.Cookie{Name: "cgpt-session", Domain: ".second.company-gpt.com", LastAccessed: 100, ExpirationDate: 900},
	)
	r, _ := newTestResolver(testConfig(), cookies)

	snap := r.Resolve(context.Background(), true)
	if snap.Tenant != "second" {
		t.Errorf("expected tie broken by expirationDate, got %q", snap.Tenant)
	}
}

func TestResolveExpiredCookieUnauthenticated(t *testing.T) {
	past := float64(time.Now().Add(-time.Hour).Unix())
	cookies := browser.NewMemoryCookies(
		browser.Cookie{Name: "cgpt-session", Domain: ".acme.company-gpt.com", LastAccessed: 200, ExpirationDate: past},
	)
	r, _ := newTestResolver(testConfig(), cookies)

	snap := r.Resolve(context.Background(), true)
	if snap.Tenant != "acme" {
		t.Errorf("tenant label still resolves from the cookie host, got %q", snap.Tenant)
	}
	if snap.Authenticated {
		t.Error("expired session cookie must not count as authenticated")
	}
}

func TestResolveFallbacks(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	t.Run("persisted tenant", func(t *testing.T) {
		r, storage := newTestResolver(cfg, browser.NewMemoryCookies())
		storage.Set(ctx, browser.KeyLastKnownTenant, "gamma")
		snap := r.Resolve(ctx, true)
		if snap.Tenant != "gamma" || snap.Source != SourcePersisted {
			t.Errorf("expected persisted gamma, got %+v", snap)
		}
		if snap.Authenticated {
			t.Error("persisted tenant does not imply authentication")
		}
	})

	t.Run("active tab", func(t *testing.T) {
		storage := browser.NewMemoryStorage()
		tabs := browser.NewMemoryTabs(browser.Tab{ID: 1, URL: "https://delta.company-gpt.com/chat"})
		r := NewResolver(cfg, browser.NewMemoryCookies(), tabs, storage, nil)
		snap := r.Resolve(ctx, true)
		if snap.Tenant != "delta" || snap.Source != SourceActiveTab {
			t.Errorf("expected active-tab delta, got %+v", snap)
		}
	})

	t.Run("none", func(t *testing.T) {
		r, _ := newTestResolver(cfg, browser.NewMemoryCookies())
		snap := r.Resolve(ctx, true)
		if !snap.None() {
			t.Errorf("expected none descriptor, got %+v", snap)
		}
	})

	t.Run("cookie API failure", func(t *testing.T) {
		store := browser.NewMemoryCookies()
		store.Err = errors.New("browser gone")
		r, _ := newTestResolver(cfg, store)
		snap := r.Resolve(ctx, true)
		if !snap.None() {
			t.Errorf("browser errors must surface as none, got %+v", snap)
		}
	})
}

// countingCookies wraps a CookieStore and counts List calls; Release gates
// the first call so concurrent resolutions can be lined up.
type countingCookies struct {
	browser.CookieStore
	lists int64
	gate  chan struct{}
}

func (c *countingCookies) List(ctx context.Context, suffix, name string) ([]browser.Cookie, error) {
	atomic.AddInt64(&c.lists, 1)
	if c.gate != nil {
		<-c.gate
	}
	return c.CookieStore.List(ctx, suffix, name)
}

func TestResolveCaches(t *testing.T) {
	ctx := context.Background()
	inner := browser.NewMemoryCookies(
		browser.Cookie{Name: "cgpt-session", Domain: ".acme.company-gpt.com", LastAccessed: 1},
	)
	counting := &countingCookies{CookieStore: inner}
	storage := browser.NewMemoryStorage()
	tabs := browser.NewMemoryTabs(browser.Tab{})
	r := NewResolver(testConfig(), counting, tabs, storage, nil)

	first := r.Resolve(ctx, false)
	second := r.Resolve(ctx, false)
	if atomic.LoadInt64(&counting.lists) != 1 {
		t.Errorf("expected one cookie listing for two cached resolutions, got %d", counting.lists)
	}
	if first.Tenant != second.Tenant || first.Source != second.Source {
		t.Errorf("cached resolution differs: %+v vs %+v", first, second)
	}
}

func TestResolveCoalescesConcurrentRefreshes(t *testing.T) {
	ctx := context.Background()
	inner := browser.NewMemoryCookies(
		browser.Cookie{Name: "cgpt-session", Domain: ".acme.company-gpt.com", LastAccessed: 1},
	)
	counting := &countingCookies{CookieStore: inner, gate: make(chan struct{})}
	storage := browser.NewMemoryStorage()
	tabs := browser.NewMemoryTabs(browser.Tab{})
	r := NewResolver(testConfig(), counting, tabs, storage, nil)

	var wg sync.WaitGroup
	results := make([]Snapshot, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(ctx, true)
		}(i)
	}
	// Allow both goroutines to reach the resolver before releasing the gate.
	time.Sleep(20 * time.Millisecond)
	close(counting.gate)
	wg.Wait()

	if atomic.LoadInt64(&counting.lists) != 1 {
		t.Errorf("expected a single coalesced listing, got %d", counting.lists)
	}
	if results[0].Tenant != results[1].Tenant {
		t.Errorf("coalesced callers disagree: %+v vs %+v", results[0], results[1])
	}
}

func TestWatcherDebouncesAndSwitchesTenant(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	future := float64(time.Now().Add(time.Hour).Unix())
	inner := browser.NewMemoryCookies(
		browser.Cookie{Name: "cgpt-session", Domain: ".acme.company-gpt.com", LastAccessed: 200, ExpirationDate: future},
		browser.Cookie{Name: "cgpt-session", Domain: ".beta.company-gpt.com", LastAccessed: 100, ExpirationDate: future},
	)
	counting := &countingCookies{CookieStore: inner}
	storage := browser.NewMemoryStorage()
	tabs := browser.NewMemoryTabs(browser.Tab{})
	r := NewResolver(cfg, counting, tabs, storage, nil)

	snap := r.Resolve(ctx, true)
	if snap.Tenant != "acme" || !snap.MultiTenant {
		t.Fatalf("precondition failed: %+v", snap)
	}
	baseline := atomic.LoadInt64(&counting.lists)

	bus := events.NewBus(nil)
	defer bus.Shutdown()
	resolved := bus.Subscribe(ctx, events.TypeFilter(events.TenantResolved))

	w := NewWatcher(r, bus, nil)
	go w.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	// Several changes inside one debounce window: a single re-resolution.
	inner.Put(browser.Cookie{Name: "cgpt-session", Domain: ".beta.company-gpt.com", LastAccessed: 300, ExpirationDate: future})
	inner.Put(browser.Cookie{Name: "cgpt-session", Domain: ".beta.company-gpt.com", LastAccessed: 301, ExpirationDate: future})
	inner.Put(browser.Cookie{Name: "cgpt-session", Domain: ".beta.company-gpt.com", LastAccessed: 302, ExpirationDate: future})

	select {
	case e := <-resolved:
		payload := e.Payload.(events.AuthChangePayload)
		if payload.Tenant != "beta" {
			t.Errorf("expected switch to beta, got %q", payload.Tenant)
		}
	case <-time.After(time.Second):
		t.Fatal("no re-resolution after cookie change")
	}

	// Let any stray debounce windows drain, then assert a single listing.
	time.Sleep(3 * cfg.CookieDebounce)
	if got := atomic.LoadInt64(&counting.lists) - baseline; got != 1 {
		t.Errorf("expected exactly one re-resolution for the burst, got %d", got)
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	future := float64(time.Now().Add(time.Hour).Unix())
	cookies := browser.NewMemoryCookies(
		browser.Cookie{Name: "cgpt-session", Domain: ".acme.company-gpt.com", LastAccessed: 10, ExpirationDate: future},
	)
	storage := browser.NewMemoryStorage()
	tabs := browser.NewMemoryTabs(browser.Tab{})

	warm := NewResolver(cfg, cookies, tabs, storage, nil)
	warm.Resolve(ctx, true)

	// Cold start against the same storage restores the descriptor without
	// touching the browser.
	cold := NewResolver(cfg, browser.NewMemoryCookies(), tabs, storage, nil)
	if last := cold.Last(); last.Tenant != "acme" || !last.Authenticated {
		t.Errorf("expected restored snapshot for acme, got %+v", last)
	}
	if cold.State() != StateAuthenticated {
		t.Errorf("expected authenticated state after restore, got %s", cold.State())
	}
}
