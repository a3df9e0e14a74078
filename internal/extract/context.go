// Package extract turns whatever page the user is looking at into a
// normalized plain-text context record. Each supported site gets its own
// extractor over the page's DOM snapshot; all of them produce the same
// Context shape.
package extract

import "strings"

// Site tags which extractor produced a context.
type Site string

const (
	SiteGeneric    Site = "generic"
	SiteGmail      Site = "gmail"
	SiteOutlook    Site = "outlook"
	SiteGoogleDocs Site = "googleDocs"
	SiteSharePoint Site = "sharepoint"
	SiteCompanyGPT Site = "companyGpt"
)

// Context is the normalized representation of the current page. A Context
// is immutable once produced; every extraction returns a fresh instance.
type Context struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Host      string `json:"host"`
	Site      Site   `json:"pageType"`
	Text      string `json:"mainText"`
	Selection string `json:"selectedText,omitempty"`
	WordCount int    `json:"wordCount"`
	Method    string `json:"extractionMethod"`

	Email      *EmailMeta      `json:"email,omitempty"`
	Doc        *DocMeta        `json:"doc,omitempty"`
	SharePoint *SharePointMeta `json:"sharepoint,omitempty"`
	Chat       *ChatMeta       `json:"chat,omitempty"`
}

// EmailMeta carries thread details for mail sites.
type EmailMeta struct {
	Provider       string `json:"provider"`
	MessageCount   int    `json:"messageCount"`
	OriginalSender string `json:"originalSender,omitempty"`
	GreetingName   string `json:"greetingName,omitempty"`
}

// DocMeta carries document details for Google Docs pages.
type DocMeta struct {
	DocID       string `json:"docId,omitempty"`
	PageCount   int    `json:"pageCount,omitempty"`
	NeedsExport bool   `json:"needsExport,omitempty"`
}

// SharePointMeta carries the WOPI file reference discovered in the viewer.
type SharePointMeta struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType,omitempty"`
}

// ChatMeta carries details for company chat pages.
type ChatMeta struct {
	MessageCount int `json:"messageCount"`
}

// IsEmail reports whether the context came from a mail site.
func (c Context) IsEmail() bool {
	return c.Site == SiteGmail || c.Site == SiteOutlook
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
