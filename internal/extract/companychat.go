package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxChatMessages bounds how much of an open chat transcript is captured.
const maxChatMessages = 10

// extractCompanyChat captures the visible conversation of an open CompanyGPT
// tab so the assistant can refer to it.
func extractCompanyChat(doc *goquery.Document) Context {
	type turn struct {
		role string
		text string
	}

	var turns []turn
	doc.Find("div.chat-message, div[data-message-role]").Each(func(_ int, sel *goquery.Selection) {
		role, _ := sel.Attr("data-message-role")
		if role == "" {
			if sel.HasClass("chat-message-user") {
				role = "user"
			} else {
				role = "assistant"
			}
		}
		if text := normalizeBlock(sel.Text()); text != "" {
			turns = append(turns, turn{role: role, text: text})
		}
	})

	if len(turns) > maxChatMessages {
		turns = turns[len(turns)-maxChatMessages:]
	}

	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "[%s] %s\n\n", t.role, t.text)
	}

	return Context{
		Title:  collapseWhitespace(doc.Find("title").First().Text()),
		Text:   strings.TrimSpace(b.String()),
		Method: "chat transcript extraction",
		Chat:   &ChatMeta{MessageCount: len(turns)},
	}
}
