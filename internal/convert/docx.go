package convert

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"
)

// convertDocx reads word/document.xml out of the OOXML container and walks
// its runs. Paragraph boundaries become newlines; everything else in the
// markup is ignored.
func convertDocx(data []byte) Result {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{OK: false, Advisory: "Die Word-Datei ist beschädigt und konnte nicht geöffnet werden."}
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			break
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			docXML = nil
		}
		break
	}
	if docXML == nil {
		return Result{OK: false, Advisory: "Die Word-Datei enthält kein lesbares Dokument."}
	}

	text, err := docxRuns(docXML)
	if err != nil {
		return Result{OK: false, Advisory: "Der Inhalt der Word-Datei konnte nicht gelesen werden."}
	}
	return Result{Text: text, OK: true}
}

func docxRuns(docXML []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(docXML))

	var b strings.Builder
	var inText bool
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "br", "cr":
				b.WriteString("\n")
			case "tab":
				b.WriteString("\t")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
