// Package tenant resolves which tenant subdomain the user is authenticated
// against. The session cookie's host is the source of truth; persisted state
// and the active tab serve as fallbacks.
package tenant

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	gocache "github.com/patrickmn/go-cache"

	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/config"
)

// Source records where a tenant label came from.
type Source string

const (
	SourceCookie    Source = "cookie"
	SourcePersisted Source = "persisted"
	SourceActiveTab Source = "active-tab"
	SourceNone      Source = "none"
)

// State is the resolver's lifecycle state.
type State string

const (
	StateUnknown         State = "unknown"
	StateResolving       State = "resolving"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// Snapshot is a tenant descriptor. Either Tenant is a usable label, or
// Source is SourceNone and the descriptor means "no tenant".
type Snapshot struct {
	Tenant           string    `json:"activeTenant"`
	Source           Source    `json:"source"`
	AvailableTenants []string  `json:"availableTenants"`
	MultiTenant      bool      `json:"multiTenant"`
	Authenticated    bool      `json:"isAuthenticated"`
	User             string    `json:"user,omitempty"`
	CheckedAt        time.Time `json:"lastCheckTimestamp"`
}

// None reports whether the descriptor carries no usable tenant.
func (s Snapshot) None() bool { return s.Source == SourceNone || s.Tenant == "" }

const cacheKey = "auth"

// Resolver resolves and caches the tenant descriptor. Concurrent refreshes
// are coalesced: a second caller awaits the in-flight resolution.
type Resolver struct {
	cfg     *config.Config
	cookies browser.CookieStore
	tabs    browser.Tabs
	storage browser.Storage
	cache   *gocache.Cache
	logger  *log.Logger

	mu       sync.Mutex
	state    State
	last     Snapshot
	inflight *inflightCall

	now func() time.Time
}

type inflightCall struct {
	done chan struct{}
	snap Snapshot
}

// NewResolver builds a resolver. A persisted auth snapshot younger than the
// configured restore window seeds the initial descriptor.
func NewResolver(cfg *config.Config, cookies browser.CookieStore, tabs browser.Tabs, storage browser.Storage, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	r := &Resolver{
		cfg:     cfg,
		cookies: cookies,
		tabs:    tabs,
		storage: storage,
		cache:   gocache.New(cfg.AuthCacheTTL, time.Minute),
		logger:  logger.With("component", "tenant"),
		state:   StateUnknown,
		now:     time.Now,
	}
	r.restoreSnapshot()
	return r
}

// State returns the resolver's current lifecycle state.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Last returns the most recent descriptor without resolving.
func (r *Resolver) Last() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Resolve returns the current tenant descriptor. Results are cached for the
// configured TTL; force bypasses the cache. Browser API failures yield a
// "none" descriptor, never an error.
func (r *Resolver) Resolve(ctx context.Context, force bool) Snapshot {
	if !force {
		if v, ok := r.cache.Get(cacheKey); ok {
			return v.(Snapshot)
		}
	}

	r.mu.Lock()
	if r.inflight != nil {
		call := r.inflight
		r.mu.Unlock()
		<-call.done
		return call.snap
	}
	call := &inflightCall{done: make(chan struct{})}
	r.inflight = call
	r.state = StateResolving
	r.mu.Unlock()

	snap := r.resolve(ctx)

	r.cache.Set(cacheKey, snap, gocache.DefaultExpiration)
	r.persistSnapshot(ctx, snap)

	r.mu.Lock()
	r.inflight = nil
	r.last = snap
	if snap.Authenticated {
		r.state = StateAuthenticated
	} else {
		r.state = StateUnauthenticated
	}
	r.mu.Unlock()

	call.snap = snap
	close(call.done)
	return snap
}

// resolve runs the lookup chain from §4.1: cookies, persisted tenant,
// active tab, none.
func (r *Resolver) resolve(ctx context.Context) Snapshot {
	snap := Snapshot{Source: SourceNone, CheckedAt: r.now()}

	cookies, err := r.cookies.List(ctx, r.cfg.CookieDomainSuffix(), r.cfg.SessionCookieName)
	if err != nil {
		r.logger.Warn("cookie listing failed", "error", err)
		return snap
	}

	if len(cookies) > 0 {
		sortCookies(cookies)
		labels := map[string]struct{}{}
		for _, c := range cookies {
			if label := r.labelFromDomain(c.Domain); label != "" {
				labels[label] = struct{}{}
			}
		}
		snap.AvailableTenants = sortedLabels(labels)
		snap.MultiTenant = len(snap.AvailableTenants) > 1

		newest := cookies[0]
		if label := r.labelFromDomain(newest.Domain); label != "" {
			snap.Tenant = label
			snap.Source = SourceCookie
			snap.Authenticated = cookieValid(newest, r.now())
			r.persistTenant(ctx, label)
			return snap
		}
	}

	if persisted, ok, _ := r.storage.Get(ctx, browser.KeyLastKnownTenant); ok && persisted != "" {
		snap.Tenant = persisted
		snap.Source = SourcePersisted
		return snap
	}

	if tab, err := r.tabs.Active(ctx); err == nil {
		if u, err := url.Parse(tab.URL); err == nil {
			if label, ok := r.cfg.IsTenantHost(u.Hostname()); ok {
				snap.Tenant = label
				snap.Source = SourceActiveTab
				r.persistTenant(ctx, label)
				return snap
			}
		}
	}

	return snap
}

func (r *Resolver) labelFromDomain(domain string) string {
	host := strings.TrimPrefix(domain, ".")
	suffix := "." + r.cfg.RootDomain
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	return strings.TrimSuffix(host, suffix)
}

func (r *Resolver) persistTenant(ctx context.Context, label string) {
	if err := r.storage.Set(ctx, browser.KeyLastKnownTenant, label); err != nil {
		r.logger.Warn("failed to persist tenant", "tenant", label, "error", err)
	}
}

func (r *Resolver) persistSnapshot(ctx context.Context, snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := r.storage.Set(ctx, browser.KeyAuthState, string(data)); err != nil {
		r.logger.Warn("failed to persist auth snapshot", "error", err)
	}
}

func (r *Resolver) restoreSnapshot() {
	raw, ok, err := r.storage.Get(context.Background(), browser.KeyAuthState)
	if err != nil || !ok {
		return
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return
	}
	age := r.now().Sub(snap.CheckedAt)
	if age > r.cfg.AuthSnapshotMax {
		return
	}
	r.last = snap
	if snap.Authenticated {
		r.state = StateAuthenticated
	} else {
		r.state = StateUnauthenticated
	}
	if age <= r.cfg.AuthCacheTTL {
		r.cache.Set(cacheKey, snap, gocache.DefaultExpiration)
	}
}

// sortCookies orders by lastAccessed descending, falling back to
// expirationDate.
func sortCookies(cookies []browser.Cookie) {
	sort.SliceStable(cookies, func(i, j int) bool {
		if cookies[i].LastAccessed != cookies[j].LastAccessed {
			return cookies[i].LastAccessed > cookies[j].LastAccessed
		}
		return cookies[i].ExpirationDate > cookies[j].ExpirationDate
	})
}

func sortedLabels(set map[string]struct{}) []string {
	labels := make([]string, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

func cookieValid(c browser.Cookie, now time.Time) bool {
	if c.ExpirationDate == 0 {
		return true
	}
	return c.ExpirationDate > float64(now.Unix())
}
