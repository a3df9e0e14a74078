package inject

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	blankLineSplit = regexp.MustCompile(`\n\s*\n`)
	htmlTagPattern = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)
	subjectLine    = regexp.MustCompile(`^\s*Subject:[^\n]*\n+`)
)

// formatOutlook renders the reply as Outlook compose HTML: blank-line
// paragraphs each in a styled div, separated by an empty-line div.
func formatOutlook(reply, fontStack string) string {
	style := fmt.Sprintf("font-family: %s; font-size: 11pt;", fontStack)

	var parts []string
	for _, para := range blankLineSplit.Split(strings.TrimSpace(reply), -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		body := strings.ReplaceAll(html.EscapeString(para), "\n", "<br>")
		parts = append(parts, fmt.Sprintf(`<div style="%s">%s</div>`, style, body))
	}
	sep := fmt.Sprintf(`<div style="%s"><br></div>`, style)
	return strings.Join(parts, sep)
}

// formatGmail renders the reply as Gmail compose HTML. A reply that
// already carries markup keeps it, with newlines becoming line breaks;
// plain text adopts Gmail's own div-per-line structure.
func formatGmail(reply string) string {
	reply = stripSubject(strings.TrimSpace(reply))

	if htmlTagPattern.MatchString(reply) {
		return "<div>" + strings.ReplaceAll(reply, "\n", "<br>") + "</div>"
	}

	escaped := html.EscapeString(reply)
	escaped = blankLineSplit.ReplaceAllString(escaped, "</div><div><br></div><div>")
	escaped = strings.ReplaceAll(escaped, "\n", "</div><div>")
	return "<div>" + escaped + "</div>"
}

// stripSubject drops a leading Subject: line and surrounding quotes,
// which models like to emit around email replies.
func stripSubject(reply string) string {
	if len(reply) >= 2 && strings.HasPrefix(reply, `"`) && strings.HasSuffix(reply, `"`) {
		reply = strings.TrimSpace(reply[1 : len(reply)-1])
	}
	return strings.TrimSpace(subjectLine.ReplaceAllString(reply, ""))
}
