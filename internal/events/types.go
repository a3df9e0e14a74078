package events

import (
	"time"
)

// Type identifies the type of event.
type Type string

// Core event types carried between the three execution contexts.
const (
	// Auth events
	AuthStateChanged Type = "auth.state.changed"
	TenantResolved   Type = "auth.tenant.resolved"

	// Store events
	StateSync Type = "state.sync"

	// Page events
	ContentUpdated Type = "content.updated"
	TabChanged     Type = "tab.changed"

	// Chat events
	ChatStepStarted   Type = "chat.step.started"
	ChatStepCompleted Type = "chat.step.completed"
	ChatStepFailed    Type = "chat.step.failed"
	ChatAborted       Type = "chat.aborted"

	// System events
	SystemError Type = "system.error"
)

// Event is a single notification on the bus.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
}

// Filter decides whether a subscriber receives an event.
type Filter func(Event) bool

// TypeFilter accepts only the given event types.
func TypeFilter(types ...Type) Filter {
	set := make(map[Type]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(e Event) bool {
		_, ok := set[e.Type]
		return ok
	}
}

// SessionFilter accepts only events scoped to the given session.
func SessionFilter(sessionID string) Filter {
	return func(e Event) bool {
		return e.SessionID == sessionID
	}
}

// AuthChangePayload reports an authenticated/unauthenticated transition.
type AuthChangePayload struct {
	Authenticated    bool     `json:"isAuthenticated"`
	Tenant           string   `json:"tenant"`
	MultiTenant      bool     `json:"multiTenant"`
	AvailableTenants []string `json:"availableTenants"`
}

// SyncPayload carries a batch of store paths changed in another context.
type SyncPayload struct {
	Key     string         `json:"key"`
	Updates map[string]any `json:"updates"`
}

// ContentUpdatedPayload signals that a page's extractable content changed.
type ContentUpdatedPayload struct {
	Site string `json:"siteType"`
	URL  string `json:"url"`
}

// ErrorPayload describes a surfaced failure.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StepPayload reports progress of a multi-step chat flow.
type StepPayload struct {
	Index   int    `json:"index"` // 1-based
	Total   int    `json:"total"`
	Label   string `json:"label"`
	Summary string `json:"summary,omitempty"`
	Detail  string `json:"detail,omitempty"`
}
