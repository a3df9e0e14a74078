package tenant

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/companygpt/sidekick/internal/events"
)

// Watcher re-resolves the tenant when the session cookie changes. Changes
// arriving within one debounce window collapse into a single re-resolution,
// and only true/false transitions of authenticated-ness are announced.
type Watcher struct {
	resolver *Resolver
	bus      *events.Bus
	logger   *log.Logger
	debounce time.Duration
}

// NewWatcher builds a cookie watcher over the resolver.
func NewWatcher(resolver *Resolver, bus *events.Bus, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Watcher{
		resolver: resolver,
		bus:      bus,
		logger:   logger.With("component", "tenant-watcher"),
		debounce: resolver.cfg.CookieDebounce,
	}
}

// Run observes cookie changes until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	changes, err := w.resolver.cookies.Watch(ctx)
	if err != nil {
		return err
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if !w.relevant(change.Cookie.Name, change.Cookie.Domain) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-fire:
			timer = nil
			fire = nil
			w.reresolve(ctx)
		}
	}
}

func (w *Watcher) relevant(name, domain string) bool {
	if name != w.resolver.cfg.SessionCookieName {
		return false
	}
	host := strings.TrimPrefix(domain, ".")
	return strings.HasSuffix(host, w.resolver.cfg.RootDomain)
}

func (w *Watcher) reresolve(ctx context.Context) {
	before := w.resolver.Last()
	snap := w.resolver.Resolve(ctx, true)

	w.bus.Publish(events.TenantResolved, events.AuthChangePayload{
		Authenticated:    snap.Authenticated,
		Tenant:           snap.Tenant,
		MultiTenant:      snap.MultiTenant,
		AvailableTenants: snap.AvailableTenants,
	})

	if snap.Authenticated != before.Authenticated {
		w.logger.Info("auth state changed", "authenticated", snap.Authenticated, "tenant", snap.Tenant)
		w.bus.Publish(events.AuthStateChanged, events.AuthChangePayload{
			Authenticated:    snap.Authenticated,
			Tenant:           snap.Tenant,
			MultiTenant:      snap.MultiTenant,
			AvailableTenants: snap.AvailableTenants,
		})
	}
}
