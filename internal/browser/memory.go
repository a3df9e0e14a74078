package browser

import (
	"context"
	"strings"
	"sync"
)

// The in-memory implementations below stand in for the host browser in
// tests and in embedded runs without a live extension connection.

// MemoryCookies is an in-memory CookieStore.
type MemoryCookies struct {
	mu      sync.Mutex
	cookies []Cookie
	watches []chan CookieChange
	Err     error // when set, List fails with this error
}

// NewMemoryCookies returns an empty cookie store.
func NewMemoryCookies(cookies ...Cookie) *MemoryCookies {
	return &MemoryCookies{cookies: cookies}
}

// Put adds or replaces a cookie and notifies watchers.
func (m *MemoryCookies) Put(c Cookie) {
	m.mu.Lock()
	replaced := false
	for i, existing := range m.cookies {
		if existing.Name == c.Name && existing.Domain == c.Domain {
			m.cookies[i] = c
			replaced = true
			break
		}
	}
	if !replaced {
		m.cookies = append(m.cookies, c)
	}
	watches := append([]chan CookieChange(nil), m.watches...)
	m.mu.Unlock()

	for _, ch := range watches {
		select {
		case ch <- CookieChange{Cookie: c}:
		default:
		}
	}
}

// Remove deletes a cookie and notifies watchers.
func (m *MemoryCookies) Remove(name, domain string) {
	m.mu.Lock()
	var removed *Cookie
	for i, existing := range m.cookies {
		if existing.Name == name && existing.Domain == domain {
			removed = &existing
			m.cookies = append(m.cookies[:i], m.cookies[i+1:]...)
			break
		}
	}
	watches := append([]chan CookieChange(nil), m.watches...)
	m.mu.Unlock()

	if removed == nil {
		return
	}
	for _, ch := range watches {
		select {
		case ch <- CookieChange{Cookie: *removed, Removed: true}:
		default:
		}
	}
}

// List returns cookies matching the domain suffix and name.
func (m *MemoryCookies) List(_ context.Context, domainSuffix, name string) ([]Cookie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []Cookie
	for _, c := range m.cookies {
		if c.Name != name {
			continue
		}
		if strings.HasSuffix(c.Domain, domainSuffix) || c.Domain == strings.TrimPrefix(domainSuffix, ".") {
			out = append(out, c)
		}
	}
	return out, nil
}

// Watch delivers cookie changes until ctx is cancelled.
func (m *MemoryCookies) Watch(ctx context.Context) (<-chan CookieChange, error) {
	ch := make(chan CookieChange, 16)
	m.mu.Lock()
	m.watches = append(m.watches, ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		for i, w := range m.watches {
			if w == ch {
				m.watches = append(m.watches[:i], m.watches[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// MemoryTabs is an in-memory Tabs with a single settable active tab.
type MemoryTabs struct {
	mu  sync.Mutex
	tab Tab
	Err error
}

// NewMemoryTabs returns a tab surface with the given active tab.
func NewMemoryTabs(tab Tab) *MemoryTabs {
	return &MemoryTabs{tab: tab}
}

// SetActive replaces the active tab.
func (m *MemoryTabs) SetActive(tab Tab) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tab = tab
}

// Active returns the active tab.
func (m *MemoryTabs) Active(_ context.Context) (Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return Tab{}, m.Err
	}
	return m.tab, nil
}

// MemoryStorage is an in-memory Storage.
type MemoryStorage struct {
	mu      sync.Mutex
	values  map[string]string
	watches []chan struct{}
}

// NewMemoryStorage returns an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key and signals watchers when it changed.
func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	if old, ok := m.values[key]; ok && old == value {
		m.mu.Unlock()
		return nil
	}
	m.values[key] = value
	watches := append([]chan struct{}(nil), m.watches...)
	m.mu.Unlock()

	notify(watches)
	return nil
}

// Delete removes key and signals watchers.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	if _, ok := m.values[key]; !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.values, key)
	watches := append([]chan struct{}(nil), m.watches...)
	m.mu.Unlock()

	notify(watches)
	return nil
}

// Watch signals every mutation until ctx is cancelled.
func (m *MemoryStorage) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.watches = append(m.watches, ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		for i, w := range m.watches {
			if w == ch {
				m.watches = append(m.watches[:i], m.watches[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func notify(watches []chan struct{}) {
	for _, ch := range watches {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// MemoryClipboard records clipboard writes. A non-nil Err fails every
// write.
type MemoryClipboard struct {
	mu    sync.Mutex
	Texts []string
	Err   error
}

// Write appends text to the recorded writes.
func (m *MemoryClipboard) Write(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Texts = append(m.Texts, text)
	return nil
}

// Last returns the most recent clipboard write, if any.
func (m *MemoryClipboard) Last() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Texts) == 0 {
		return "", false
	}
	return m.Texts[len(m.Texts)-1], true
}

// ComposeWrite records one WriteCompose call on a FakePage.
type ComposeWrite struct {
	TabID  int
	Target ComposeTarget
	HTML   string
}

// FakePage is an in-memory Scripting implementation serving a canned DOM and
// recording every write-side call.
type FakePage struct {
	mu sync.Mutex

	DOM          string
	AgentPresent bool
	FailCompose  bool // when set, WriteCompose fails

	ReplyClicks     []string
	ComposeWrites   []ComposeWrite
	InputDispatches int
	AgentInjected   bool
}

// SetDOM replaces the page snapshot.
func (f *FakePage) SetDOM(html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DOM = html
}

// SnapshotDOM returns the canned page HTML.
func (f *FakePage) SnapshotDOM(_ context.Context, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.DOM, nil
}

// ClickReply records a reply-button click.
func (f *FakePage) ClickReply(_ context.Context, _ int, provider string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReplyClicks = append(f.ReplyClicks, provider)
	return nil
}

// WriteCompose records a compose write.
func (f *FakePage) WriteCompose(_ context.Context, tabID int, target ComposeTarget, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCompose {
		return context.DeadlineExceeded
	}
	f.ComposeWrites = append(f.ComposeWrites, ComposeWrite{TabID: tabID, Target: target, HTML: html})
	return nil
}

// DispatchInput records an input-event dispatch.
func (f *FakePage) DispatchInput(_ context.Context, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InputDispatches++
	return nil
}

// HasAgent reports whether the fake agent is installed.
func (f *FakePage) HasAgent(_ context.Context, _ int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.AgentPresent, nil
}

// InjectAgent installs the fake agent.
func (f *FakePage) InjectAgent(_ context.Context, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AgentPresent = true
	f.AgentInjected = true
	return nil
}
