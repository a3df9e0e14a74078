package chat

import (
	"regexp"
	"strings"

	"github.com/companygpt/sidekick/internal/extract"
)

// Intent classifies what the user wants from the next assistant turn. It
// drives both the prompt shape and the post-reply affordances.
type Intent string

const (
	IntentGeneral         Intent = "general"
	IntentEmailReply      Intent = "email-reply"
	IntentEmailSummary    Intent = "email-summary"
	IntentDocumentSummary Intent = "document-summary"
	IntentEmailNew        Intent = "email-new"
	IntentDocActions      Intent = "doc-actions"
	IntentCalendarActions Intent = "calendar-actions"
)

// VariationMarker tags a re-send of the last assistant reply asking for a
// tone or length variation. Its presence keeps the email-reply intent.
const VariationMarker = "[Variations-Anfrage]"

var emailReplyKeywords = regexp.MustCompile(`(?i)(beantworte|antwort|reply|email)`)

// ResolveIntent picks the intent for a send. An explicit intent wins;
// otherwise the page context and the message text decide.
func ResolveIntent(explicit Intent, text string, pctx *extract.Context) Intent {
	if explicit != "" {
		return explicit
	}
	if strings.Contains(text, VariationMarker) {
		return IntentEmailReply
	}
	if pctx == nil {
		return IntentGeneral
	}
	switch {
	case pctx.IsEmail() && emailReplyKeywords.MatchString(text):
		return IntentEmailReply
	case pctx.Site == extract.SiteGoogleDocs || pctx.Site == extract.SiteSharePoint:
		return IntentDocActions
	case isCalendarContext(pctx):
		return IntentCalendarActions
	default:
		return IntentGeneral
	}
}

// isCalendarContext recognizes the calendar surfaces of the mail hosts.
func isCalendarContext(pctx *extract.Context) bool {
	return strings.Contains(pctx.URL, "calendar.google.com") ||
		strings.Contains(pctx.URL, "/calendar/")
}
