// Package convert turns downloaded office documents into plain text the
// chat orchestrator can feed into a prompt.
package convert

import (
	"path"
	"strings"

	"github.com/charmbracelet/log"
)

// Result is the outcome of a conversion attempt. Advisory carries a note
// for the user when the text is partial or absent; OK reports whether the
// result is usable at all.
type Result struct {
	Text     string `json:"text"`
	OK       bool   `json:"ok"`
	Advisory string `json:"advisory,omitempty"`
	Format   string `json:"format"`
}

// Converter dispatches a file to the decoder matching its extension or
// MIME type.
type Converter struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Converter {
	if logger == nil {
		logger = log.Default()
	}
	return &Converter{logger: logger.With("component", "convert")}
}

// MethodName names the converter path for a format in extraction records.
// The names are part of the context shape consumed downstream.
func MethodName(format string) string {
	switch format {
	case "docx":
		return "mammoth extraction"
	case "pdf":
		return "pdf extraction"
	case "txt", "csv", "md":
		return "text extraction"
	case "html", "htm":
		return "markdown extraction"
	default:
		return "heuristic extraction"
	}
}

// Convert decodes data into text. The filename extension wins; the content
// type breaks ties when the name carries none.
func (c *Converter) Convert(filename, contentType string, data []byte) Result {
	format := formatFor(filename, contentType)
	c.logger.Debug("converting document", "file", filename, "format", format, "bytes", len(data))

	var res Result
	switch format {
	case "txt", "md":
		res = convertText(data)
	case "csv":
		res = convertCSV(data)
	case "docx":
		res = convertDocx(data)
	case "pdf":
		res = convertPDF(data)
	case "ppt", "pptx":
		res = convertPPT(data)
	case "xlsx", "xls":
		res = Result{
			OK:       false,
			Advisory: "Tabellenkalkulationen können nicht als Text gelesen werden. Bitte exportieren Sie die relevanten Daten als CSV.",
		}
	case "html", "htm":
		res = convertHTML(data)
	default:
		res = Result{
			OK:       true,
			Advisory: "Dieses Dateiformat wird nicht unterstützt. Der Inhalt konnte nicht gelesen werden.",
		}
	}
	res.Format = format
	return res
}

func formatFor(filename, contentType string) string {
	if ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), "."); ext != "" {
		return ext
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case "text/plain":
		return "txt"
	case "text/csv":
		return "csv"
	case "text/markdown":
		return "md"
	case "text/html":
		return "html"
	case "application/pdf":
		return "pdf"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return "docx"
	case "application/vnd.openxmlformats-officedocument.presentationml.presentation":
		return "pptx"
	case "application/vnd.ms-powerpoint":
		return "ppt"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return "xlsx"
	case "application/vnd.ms-excel":
		return "xls"
	}
	return ""
}
