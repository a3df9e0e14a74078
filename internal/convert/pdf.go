package convert

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// convertPDF extracts page text. Scanned PDFs carry no text layer at all;
// some generators emit only unmapped glyphs, which read as garbage. Both
// cases get an advisory instead of misleading output.
func convertPDF(data []byte) (res Result) {
	// The parser panics on some malformed files.
	defer func() {
		if recover() != nil {
			res = Result{OK: false, Advisory: "Die PDF-Datei konnte nicht geöffnet werden."}
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{OK: false, Advisory: "Die PDF-Datei konnte nicht geöffnet werden."}
	}

	var b strings.Builder
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if total > 1 {
			fmt.Fprintf(&b, "--- Page %d ---\n", i)
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return Result{
			OK:       false,
			Advisory: "Das PDF enthält keinen Text. Vermutlich ist es ein Scan; bitte nutzen Sie eine Version mit Textebene.",
		}
	}
	if looksGarbled(text) {
		return Result{
			OK:       false,
			Advisory: "Der Text des PDFs konnte nicht zuverlässig gelesen werden (fehlerhafte Zeichenkodierung).",
		}
	}
	return Result{Text: text, OK: true}
}

// looksGarbled flags output dominated by non-letter glyphs, the signature
// of a PDF without a usable character map.
func looksGarbled(text string) bool {
	var letters, others int
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			letters++
		case unicode.IsSpace(r) || unicode.IsPunct(r):
		default:
			others++
		}
	}
	return letters < others*2
}
