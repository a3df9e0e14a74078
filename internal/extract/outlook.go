package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractOutlook reads the Outlook web reading pane. The DOM uses stable
// ARIA roles rather than generated class names, so selection keys on those.
func extractOutlook(doc *goquery.Document) Context {
	subject := collapseWhitespace(doc.Find("div[role='main'] h1, span[role='heading']").First().Text())
	if subject == "" {
		subject = pageTitle(doc)
		// The tab title carries a " - Outlook" style suffix.
		if idx := strings.LastIndex(subject, " - "); idx > 0 {
			subject = strings.TrimSpace(subject[:idx])
		}
	}

	pane := doc.Find("div[aria-label='Reading Pane'], div[aria-label='Lesebereich']").First()
	if pane.Length() == 0 {
		pane = doc.Find("div[role='main']").First()
	}
	if pane.Length() == 0 {
		pane = doc.Find("body")
	}

	body := extractOutlookBodies(pane)
	if body == "" {
		body = normalizeBlock(pane.Text())
	}

	sender := collapseWhitespace(pane.Find("span[aria-label^='From'], div.OZZZK span").First().Text())

	var b strings.Builder
	if subject != "" {
		b.WriteString("Subject: " + subject + "\n\n")
	}
	b.WriteString(body)

	return Context{
		Title:  subject,
		Text:   strings.TrimSpace(b.String()),
		Method: "outlook reading pane extraction",
		Email: &EmailMeta{
			Provider:       "outlook",
			MessageCount:   countOutlookMessages(pane),
			OriginalSender: sender,
			GreetingName:   greetingName(sender),
		},
	}
}

// extractOutlookBodies prefers the per-message body containers; a
// conversation view holds one per expanded message.
func extractOutlookBodies(pane *goquery.Selection) string {
	var parts []string
	pane.Find("div[aria-label='Message body'], div[aria-label='Nachrichtentext'], div.allowTextSelection").Each(func(_ int, sel *goquery.Selection) {
		if text := normalizeBlock(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

func countOutlookMessages(pane *goquery.Selection) int {
	n := pane.Find("div[aria-label='Message body'], div[aria-label='Nachrichtentext']").Length()
	if n == 0 {
		n = 1
	}
	return n
}

func pageTitle(doc *goquery.Document) string {
	return collapseWhitespace(doc.Find("title").First().Text())
}
