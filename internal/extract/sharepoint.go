package extract

import (
	"encoding/json"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The SharePoint document viewer embeds its WOPI context as a JSON blob in
// an inline script. The file URL and name live in that blob, not in the DOM.
var (
	spFileURLPattern  = regexp.MustCompile(`"FileGetUrl"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	spFileNamePattern = regexp.MustCompile(`"FileName"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

func extractSharePoint(doc *goquery.Document, pageURL string) Context {
	meta := &SharePointMeta{}

	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		script := sel.Text()
		if !strings.Contains(script, "FileGetUrl") {
			return true
		}
		if m := spFileURLPattern.FindStringSubmatch(script); m != nil {
			meta.FileURL = unescapeJSONString(m[1])
		}
		if m := spFileNamePattern.FindStringSubmatch(script); m != nil {
			meta.FileName = unescapeJSONString(m[1])
		}
		return meta.FileURL == ""
	})

	if meta.FileName == "" && meta.FileURL != "" {
		meta.FileName = path.Base(strings.SplitN(meta.FileURL, "?", 2)[0])
	}
	meta.FileType = strings.TrimPrefix(strings.ToLower(path.Ext(meta.FileName)), ".")

	title := collapseWhitespace(doc.Find("title").First().Text())
	if meta.FileName != "" {
		title = meta.FileName
	}

	return Context{
		Title:      title,
		Method:     "sharepoint wopi extraction",
		SharePoint: meta,
	}
}

// unescapeJSONString decodes the escapes inside a captured JSON string
// value, most commonly / in SharePoint URLs.
func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
