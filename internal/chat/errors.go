package chat

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the UI surfaces it.
type Kind string

const (
	// KindNoTenant means the resolver produced "none"; the login overlay
	// asks for a subdomain.
	KindNoTenant Kind = "no-tenant"
	// KindUnauthenticated means the session cookie is missing or expired.
	KindUnauthenticated Kind = "unauthenticated"
	// KindServerUnavailable covers 5xx, 403 and transport failures on the
	// chat endpoint. It becomes a flagged assistant message, not an error.
	KindServerUnavailable Kind = "server_unavailable"
	// KindExtractionFailed means a site extractor produced no usable text.
	KindExtractionFailed Kind = "extraction-failed"
	// KindUnsupportedDocument means the converter could not parse a file;
	// its advisory text still enters the conversation as context.
	KindUnsupportedDocument Kind = "unsupported-document"
	// KindReplyInjectFailed means no compose area was found or the write
	// was rejected; the reply falls back to the clipboard.
	KindReplyInjectFailed Kind = "reply-inject-failed"
	// KindAborted means the user cancelled a multi-step flow.
	KindAborted Kind = "aborted"
	// KindContextInvalidated means the host tore down a content agent.
	KindContextInvalidated Kind = "context-invalidated"
)

// Recoverable reports whether a kind is surfaced as a conversation or UI
// record rather than propagated as an error.
func (k Kind) Recoverable() bool {
	switch k {
	case KindServerUnavailable, KindExtractionFailed, KindUnsupportedDocument,
		KindReplyInjectFailed, KindAborted, KindContextInvalidated:
		return true
	}
	return false
}

// Error is a classified chat failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error wrapping an optional cause.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf extracts the kind of a classified error, or "" for plain errors.
func KindOf(err error) Kind {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Kind
	}
	return ""
}
