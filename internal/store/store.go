// Package store is the single state tree shared by the background broker,
// the content agents and the side-panel surface. Paths use "a.b.c" notation;
// writes are deep-equality checked, pass a middleware pipeline, notify
// subscribers synchronously, and fan out to the other contexts and to
// persistent storage with a short debounce.
package store

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const maxUndoDepth = 50

// Change describes one applied write as seen by a subscriber.
type Change struct {
	Path     string
	Value    any
	Old      any
	State    map[string]any // full tree after the write (wildcard subscribers)
	Previous map[string]any // full tree before the write (wildcard subscribers)
}

// Subscriber receives applied writes.
type Subscriber func(Change)

// Middleware inspects and possibly rewrites a value before it is applied.
// Returning an error rejects the write.
type Middleware func(path string, value any, s *Store) (any, error)

type subscription struct {
	id   string
	path string // "*" for wildcard
	deep bool
	fn   Subscriber
}

type undoEntry struct {
	path string
	old  any
}

// Store is the cross-context reactive state tree.
type Store struct {
	mu       sync.Mutex
	state    map[string]any
	defaults map[string]any
	subs     []subscription
	undo     []undoEntry

	middleware []Middleware
	computed   map[string]*computedValue

	// cross-context sync + persistence plumbing (sync.go, persist.go)
	id           string
	syncer       *syncer
	persister    *persister
	applyingSync bool

	logger *log.Logger
}

// New creates a store seeded with a deep copy of defaults.
func New(defaults map[string]any, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	if defaults == nil {
		defaults = map[string]any{}
	}
	return &Store{
		state:    deepCopyMap(defaults),
		defaults: deepCopyMap(defaults),
		computed: make(map[string]*computedValue),
		id:       uuid.New().String(),
		logger:   logger.With("component", "store"),
	}
}

// Use appends a middleware to the pipeline. Middlewares run in registration
// order on every write.
func (s *Store) Use(mw Middleware) {
	s.middleware = append(s.middleware, mw)
}

// Get returns the value at path, or the evaluated computed value when path
// names a registered computed. Returned values must not be mutated in place.
func (s *Store) Get(path string) any {
	if cv := s.computedFor(path); cv != nil {
		return s.evaluateComputed(path, cv)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return getPath(s.state, path)
}

// Set writes value at path. Writes deep-equal to the current value are
// no-ops and notify nobody.
func (s *Store) Set(path string, value any) error {
	return s.set(path, value, writeOpts{})
}

// Batch applies several writes; each passes the full pipeline. Paths are
// applied in sorted order so batches are deterministic.
func (s *Store) Batch(updates map[string]any) error {
	paths := make([]string, 0, len(updates))
	for p := range updates {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := s.set(p, updates[p], writeOpts{}); err != nil {
			return fmt.Errorf("batch write %q: %w", p, err)
		}
	}
	return nil
}

// Subscribe registers fn for writes to exactly path, or every write when
// path is "*". The returned function unsubscribes.
func (s *Store) Subscribe(path string, fn Subscriber) func() {
	return s.subscribe(path, fn, false)
}

// SubscribeDeep registers fn for writes to path and any path beneath it.
func (s *Store) SubscribeDeep(path string, fn Subscriber) func() {
	return s.subscribe(path, fn, true)
}

func (s *Store) subscribe(path string, fn Subscriber, deep bool) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := subscription{id: uuid.New().String(), path: path, deep: deep, fn: fn}
	s.subs = append(s.subs, sub)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i := range s.subs {
			if s.subs[i].id == sub.id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns a deep copy of the whole tree.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopyMap(s.state)
}

// Reset restores the defaults, clears undo history and notifies wildcard
// subscribers once.
func (s *Store) Reset() {
	s.mu.Lock()
	previous := s.state
	s.state = deepCopyMap(s.defaults)
	s.undo = nil
	s.invalidateAllComputed()
	state := deepCopyMap(s.state)
	notifies := s.collectNotifies(Change{Path: "*", State: state, Previous: previous})
	s.mu.Unlock()

	for _, n := range notifies {
		n.fn(n.change)
	}
	s.afterWrite("*")
}

// Undo reverts the most recent write. Returns false with empty history.
func (s *Store) Undo() bool {
	s.mu.Lock()
	if len(s.undo) == 0 {
		s.mu.Unlock()
		return false
	}
	entry := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.mu.Unlock()

	if err := s.set(entry.path, entry.old, writeOpts{skipUndo: true, skipMiddleware: true}); err != nil {
		s.logger.Warn("undo failed", "path", entry.path, "error", err)
		return false
	}
	return true
}

type writeOpts struct {
	skipUndo       bool
	skipMiddleware bool
	fromSync       bool
}

type pendingNotify struct {
	fn     Subscriber
	change Change
}

func (s *Store) set(path string, value any, opts writeOpts) error {
	if !opts.skipMiddleware {
		for _, mw := range s.middleware {
			var err error
			value, err = mw(path, value, s)
			if err != nil {
				return err
			}
		}
	}

	s.mu.Lock()
	old := getPath(s.state, path)
	if reflect.DeepEqual(old, value) {
		s.mu.Unlock()
		return nil
	}

	var previous map[string]any
	if s.hasWildcard() {
		previous = deepCopyMap(s.state)
	}

	setPath(s.state, path, value)
	s.invalidateComputedFor(path)

	if !opts.skipUndo {
		s.undo = append(s.undo, undoEntry{path: path, old: old})
		if len(s.undo) > maxUndoDepth {
			s.undo = s.undo[len(s.undo)-maxUndoDepth:]
		}
	}

	var state map[string]any
	if s.hasWildcard() {
		state = deepCopyMap(s.state)
	}
	notifies := s.collectNotifies(Change{Path: path, Value: value, Old: old, State: state, Previous: previous})
	fromSync := opts.fromSync || s.applyingSync
	s.mu.Unlock()

	// Callbacks run synchronously before Set returns, outside the lock so
	// they may themselves read and write the store.
	for _, n := range notifies {
		n.fn(n.change)
	}

	if !fromSync {
		s.afterWrite(path)
	} else {
		s.persistOnly(path)
	}
	return nil
}

// collectNotifies matches subscribers against a change. Callers hold s.mu.
func (s *Store) collectNotifies(change Change) []pendingNotify {
	var out []pendingNotify
	for _, sub := range s.subs {
		switch {
		case sub.path == "*":
			out = append(out, pendingNotify{fn: sub.fn, change: change})
		case change.Path == "*":
			// Reset: only wildcard subscribers observe it.
		case sub.path == change.Path:
			out = append(out, pendingNotify{fn: sub.fn, change: change})
		case sub.deep && strings.HasPrefix(change.Path, sub.path+"."):
			out = append(out, pendingNotify{fn: sub.fn, change: change})
		}
	}
	return out
}

func (s *Store) hasWildcard() bool {
	for _, sub := range s.subs {
		if sub.path == "*" {
			return true
		}
	}
	return false
}

// afterWrite feeds the debounced persistence and cross-context broadcast.
func (s *Store) afterWrite(path string) {
	if s.persister != nil {
		s.persister.noteChange(path)
	}
	if s.syncer != nil {
		s.syncer.noteChange(path)
	}
}

// persistOnly records a change for persistence without re-broadcasting it;
// used when the write arrived from another context.
func (s *Store) persistOnly(path string) {
	if s.persister != nil {
		s.persister.noteChange(path)
	}
}

// --- path helpers ---

func getPath(root map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := any(root)
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

func setPath(root map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := root
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	last := parts[len(parts)-1]
	if value == nil {
		delete(current, last)
		return
	}
	current[last] = value
}

func deepCopyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = deepCopyValue(v)
	}
	return dst
}

func deepCopyValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return deepCopyMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		// Scalars are copied by value; struct values (messages, contexts)
		// are treated as immutable by convention.
		return v
	}
}
