package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// mainContentSelectors, in priority order.
var mainContentSelectors = []string{"article", "main", "[role=main]", ".content", "#content"}

// extractGeneric takes the document title and the first recognizable main
// content region, falling back to the whole body.
func extractGeneric(doc *goquery.Document) Context {
	title := strings.TrimSpace(doc.Find("title").First().Text())

	var body string
	for _, selector := range mainContentSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			body = sel.Text()
			break
		}
	}
	if body == "" {
		body = doc.Find("body").Text()
	}

	return Context{
		Title:  title,
		Text:   normalizeBlock(body),
		Method: "dom extraction",
	}
}

// normalizeBlock collapses runs of whitespace inside lines and drops empty
// lines so extracted text stays readable without DOM artifacts.
func normalizeBlock(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = collapseWhitespace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
