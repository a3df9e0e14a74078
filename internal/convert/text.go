package convert

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

func convertText(data []byte) Result {
	text := string(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}))
	if !utf8.ValidString(text) {
		return Result{
			OK:       false,
			Advisory: "Die Datei ist nicht als Text lesbar (unbekannte Kodierung).",
		}
	}
	return Result{Text: strings.TrimSpace(text), OK: true}
}

// convertCSV keeps the raw rows but labels the first line as the header so
// the model reads the columns correctly.
func convertCSV(data []byte) Result {
	res := convertText(data)
	if !res.OK || res.Text == "" {
		return res
	}
	lines := strings.SplitN(res.Text, "\n", 2)
	var b strings.Builder
	b.WriteString("Spalten: ")
	b.WriteString(strings.TrimSpace(lines[0]))
	if len(lines) > 1 {
		b.WriteString("\n")
		b.WriteString(lines[1])
	}
	res.Text = b.String()
	return res
}
