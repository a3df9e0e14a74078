package convert

import (
	md "github.com/JohannesKaufmann/html-to-markdown"
)

// convertHTML renders markup as markdown, which survives a prompt far
// better than stripped plain text.
func convertHTML(data []byte) Result {
	text, err := md.NewConverter("", true, nil).ConvertString(string(data))
	if err != nil {
		return Result{OK: false, Advisory: "Die HTML-Datei konnte nicht gelesen werden."}
	}
	return Result{Text: text, OK: true}
}
