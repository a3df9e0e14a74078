// Package events carries the one-way notifications exchanged by the
// background broker, the content agents and the side-panel surface.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const defaultBufferSize = 64

// Bus is the in-process publish-subscribe fabric. Delivery is best-effort:
// a subscriber that stops draining its channel loses events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event][]Filter
	done chan struct{}

	logger *log.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{
		subs:   make(map[chan Event][]Filter),
		done:   make(chan struct{}),
		logger: logger.With("component", "events"),
	}
}

// Publish delivers an event to every matching subscriber.
func (b *Bus) Publish(eventType Type, payload any, opts ...PublishOption) {
	select {
	case <-b.done:
		return
	default:
	}

	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&event)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, filters := range b.subs {
		if !matches(event, filters) {
			continue
		}
		select {
		case ch <- event:
		default:
			b.logger.Warn("subscriber channel full, dropping event", "type", event.Type, "id", event.ID)
		}
	}
}

// PublishOption customizes a published event.
type PublishOption func(*Event)

// WithSession scopes the event to a chat session.
func WithSession(sessionID string) PublishOption {
	return func(e *Event) { e.SessionID = sessionID }
}

// Subscribe returns a channel of events matching the filters. The channel is
// closed when ctx is cancelled or the bus shuts down.
func (b *Bus) Subscribe(ctx context.Context, filters ...Filter) <-chan Event {
	ch := make(chan Event, defaultBufferSize)

	b.mu.Lock()
	b.subs[ch] = filters
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}()

	return ch
}

// Shutdown closes every subscriber channel.
func (b *Bus) Shutdown() {
	select {
	case <-b.done:
		return
	default:
		close(b.done)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}

func matches(event Event, filters []Filter) bool {
	for _, f := range filters {
		if !f(event) {
			return false
		}
	}
	return true
}
