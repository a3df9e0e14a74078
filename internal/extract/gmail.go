package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// threadMessage is one message of a mail thread.
type threadMessage struct {
	Index     int
	Sender    string
	Timestamp string
	Body      string
}

// extractGmail collects the open thread: expanded messages first, then
// collapsed previews, then quoted blocks as a last resort.
func extractGmail(doc *goquery.Document) Context {
	subject := strings.TrimSpace(doc.Find("h2.hP").First().Text())
	if subject == "" {
		subject = strings.TrimSpace(doc.Find("h2[data-thread-perm-id]").First().Text())
	}

	var messages []threadMessage

	// Expanded messages carry a data-message-id and a .a3s body.
	doc.Find("div[data-message-id]").Each(func(_ int, sel *goquery.Selection) {
		body := normalizeBlock(sel.Find("div.a3s").First().Text())
		if body == "" {
			return
		}
		messages = append(messages, threadMessage{
			Index:     len(messages) + 1,
			Sender:    gmailSender(sel),
			Timestamp: strings.TrimSpace(sel.Find("span.g3").First().Text()),
			Body:      body,
		})
	})

	// Collapsed messages only expose a preview line.
	if len(messages) == 0 {
		doc.Find("span.y2").Each(func(_ int, sel *goquery.Selection) {
			preview := collapseWhitespace(sel.Text())
			if preview == "" {
				return
			}
			messages = append(messages, threadMessage{Index: len(messages) + 1, Body: preview})
		})
	}

	quoted := normalizeBlock(doc.Find("div.gmail_quote, blockquote").First().Text())

	// Nothing structured found: fall back to the quoted block alone.
	if len(messages) == 0 && quoted != "" {
		messages = append(messages, threadMessage{Index: 1, Body: quoted})
		quoted = ""
	}

	var b strings.Builder
	if subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n\n", subject)
	}
	for _, m := range messages {
		fmt.Fprintf(&b, "--- Message %d ---\n", m.Index)
		if m.Sender != "" {
			fmt.Fprintf(&b, "Von: %s", m.Sender)
			if m.Timestamp != "" {
				fmt.Fprintf(&b, " (%s)", m.Timestamp)
			}
			b.WriteString("\n")
		}
		b.WriteString(m.Body)
		b.WriteString("\n\n")
	}

	// A single visible message still benefits from the quoted history.
	if len(messages) == 1 && quoted != "" && quoted != messages[0].Body {
		b.WriteString("--- Vorherige Nachricht ---\n")
		b.WriteString(quoted)
		b.WriteString("\n")
	}

	var sender string
	if len(messages) > 0 {
		sender = messages[0].Sender
	}

	return Context{
		Title:  subject,
		Text:   strings.TrimSpace(b.String()),
		Method: "gmail thread extraction",
		Email: &EmailMeta{
			Provider:       "gmail",
			MessageCount:   len(messages),
			OriginalSender: sender,
			GreetingName:   greetingName(sender),
		},
	}
}

// gmailSender resolves a message's sender: the address attribute, the
// display name, or the local part of an address found in text.
func gmailSender(sel *goquery.Selection) string {
	span := sel.Find("span.gD, span[email]").First()
	if name, ok := span.Attr("name"); ok && strings.TrimSpace(name) != "" {
		return strings.TrimSpace(name)
	}
	if email, ok := span.Attr("email"); ok && strings.TrimSpace(email) != "" {
		return strings.TrimSpace(email)
	}
	if text := collapseWhitespace(span.Text()); text != "" {
		return text
	}
	return ""
}

// greetingName derives a name usable in a salutation from a sender string:
// the first word of a display name, or the capitalized first segment of an
// address local part.
func greetingName(sender string) string {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return ""
	}
	if at := strings.Index(sender, "@"); at >= 0 {
		local := sender[:at]
		if dot := strings.IndexAny(local, ".-_"); dot > 0 {
			local = local[:dot]
		}
		if local == "" {
			return ""
		}
		return strings.ToUpper(local[:1]) + local[1:]
	}
	return strings.Fields(sender)[0]
}
