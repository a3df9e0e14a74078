package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var docIDPattern = regexp.MustCompile(`/document/d/([a-zA-Z0-9_-]+)`)

// Google Docs renders pages as virtualized canvas tiles; the DOM only holds
// the tiles currently near the viewport. When the visible text is too thin
// the caller should fetch the document through the export endpoint instead.
const gdocsMinDOMChars = 100

func extractGoogleDocs(doc *goquery.Document, pageURL string) Context {
	title := collapseWhitespace(doc.Find("title").First().Text())
	title = strings.TrimSuffix(title, " - Google Docs")
	title = strings.TrimSuffix(title, " – Google Docs")

	var pages []string
	doc.Find("div.kix-page, div.kix-page-paginated").Each(func(_ int, sel *goquery.Selection) {
		if text := normalizeBlock(sel.Text()); text != "" {
			pages = append(pages, text)
		}
	})
	if len(pages) == 0 {
		if text := normalizeBlock(doc.Find("div.kix-appview-editor").Text()); text != "" {
			pages = append(pages, text)
		}
	}

	var b strings.Builder
	for i, page := range pages {
		if len(pages) > 1 {
			fmt.Fprintf(&b, "--- Page %d ---\n", i+1)
		}
		b.WriteString(page)
		b.WriteString("\n\n")
	}
	text := strings.TrimSpace(b.String())

	meta := &DocMeta{PageCount: len(pages)}
	if m := docIDPattern.FindStringSubmatch(pageURL); m != nil {
		meta.DocID = m[1]
	}
	if len(text) <= gdocsMinDOMChars && meta.DocID != "" {
		meta.NeedsExport = true
	}

	return Context{
		Title:  title,
		Text:   text,
		Method: "google docs dom extraction",
		Doc:    meta,
	}
}
