// Package browser defines the narrow boundary through which the assistant
// talks to the host browser. Cookies, tabs, page scripting, the clipboard
// and durable storage are all reached through these interfaces; everything
// behind them is an external collaborator.
package browser

import "context"

// Cookie is a single browser cookie as the host reports it. LastAccessed and
// ExpirationDate are unix timestamps in seconds; ExpirationDate is zero for
// session cookies.
type Cookie struct {
	Name           string  `json:"name"`
	Domain         string  `json:"domain"`
	Value          string  `json:"value"`
	LastAccessed   float64 `json:"lastAccessed"`
	ExpirationDate float64 `json:"expirationDate"`
}

// CookieChange is emitted when a cookie is set or removed.
type CookieChange struct {
	Cookie  Cookie `json:"cookie"`
	Removed bool   `json:"removed"`
}

// Tab identifies a browser tab.
type Tab struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ComposeTarget identifies the editable compose region of a mail page.
type ComposeTarget struct {
	Provider string `json:"provider"` // "gmail" or "outlook"
	Role     string `json:"role"`     // aria role used to locate the editable
}

// CookieStore lists and observes cookies.
type CookieStore interface {
	// List returns all cookies whose domain ends with domainSuffix and whose
	// name matches name.
	List(ctx context.Context, domainSuffix, name string) ([]Cookie, error)
	// Watch delivers cookie changes until ctx is cancelled.
	Watch(ctx context.Context) (<-chan CookieChange, error)
}

// Tabs exposes the active browser tab.
type Tabs interface {
	Active(ctx context.Context) (Tab, error)
}

// Scripting runs privileged operations inside a page. DOM reads come back as
// HTML snapshots; compose writes carry generated HTML.
type Scripting interface {
	// SnapshotDOM returns the current document HTML of the tab.
	SnapshotDOM(ctx context.Context, tabID int) (string, error)
	// ClickReply activates the provider's reply button in the tab.
	ClickReply(ctx context.Context, tabID int, provider string) error
	// WriteCompose replaces the compose editable's HTML.
	WriteCompose(ctx context.Context, tabID int, target ComposeTarget, html string) error
	// DispatchInput fires input (and for Outlook, change) events on the
	// compose editable so the page notices the write.
	DispatchInput(ctx context.Context, tabID int) error
	// HasAgent reports whether a content agent is present in the tab.
	HasAgent(ctx context.Context, tabID int) (bool, error)
	// InjectAgent installs the content agent into the tab.
	InjectAgent(ctx context.Context, tabID int) error
}

// Clipboard writes text to the system clipboard.
type Clipboard interface {
	Write(ctx context.Context, text string) error
}

// Storage is string-keyed durable storage shared by the three contexts.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Watch signals rewrites made by another context until ctx is
	// cancelled. Gets issued after a signal see the new values.
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// Persisted storage keys.
const (
	KeyLastKnownTenant = "lastKnownTenant"
	KeyAuthState       = "authState"
	KeyStoreState      = "companygpt-state"
	KeyFoldersCache    = "foldersCache"
	KeyAppState        = "appState"
)
