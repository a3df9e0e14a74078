package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"

	"github.com/companygpt/sidekick/internal/config"
)

// Pipeline dispatches a page snapshot to the extractor matching its host
// and path.
type Pipeline struct {
	cfg    *config.Config
	logger *log.Logger
}

// NewPipeline builds the extraction pipeline.
func NewPipeline(cfg *config.Config, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger.With("component", "extract")}
}

// DetectSite classifies a page URL.
func (p *Pipeline) DetectSite(pageURL string) Site {
	u, err := url.Parse(pageURL)
	if err != nil {
		return SiteGeneric
	}
	host := u.Hostname()
	path := u.Path

	switch {
	case host == "mail.google.com":
		return SiteGmail
	case host == "outlook.office.com" || host == "outlook.live.com" || host == "outlook.office365.com":
		return SiteOutlook
	case host == "docs.google.com" && strings.HasPrefix(path, "/document/"):
		return SiteGoogleDocs
	case strings.HasSuffix(host, ".sharepoint.com") &&
		(strings.Contains(path, "/_layouts/15/Doc.aspx") || strings.Contains(path, "/_layouts/15/WopiFrame")):
		return SiteSharePoint
	default:
		if _, ok := p.cfg.IsTenantHost(host); ok {
			return SiteCompanyGPT
		}
		return SiteGeneric
	}
}

// Extract parses the page snapshot and runs the extractor for its site.
// selection is the user's current text selection, passed through verbatim.
func (p *Pipeline) Extract(html, pageURL, selection string) (Context, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Context{}, fmt.Errorf("failed to parse page: %w", err)
	}

	site := p.DetectSite(pageURL)
	var out Context
	switch site {
	case SiteGmail:
		out = extractGmail(doc)
	case SiteOutlook:
		out = extractOutlook(doc)
	case SiteGoogleDocs:
		out = extractGoogleDocs(doc, pageURL)
	case SiteSharePoint:
		out = extractSharePoint(doc, pageURL)
	case SiteCompanyGPT:
		out = extractCompanyChat(doc)
	default:
		out = extractGeneric(doc)
	}

	out.Site = site
	out.URL = pageURL
	if u, err := url.Parse(pageURL); err == nil {
		out.Host = u.Hostname()
	}
	out.Selection = strings.TrimSpace(selection)
	out.WordCount = wordCount(out.Text)
	if out.Title == "" {
		out.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	p.logger.Debug("extracted page context", "site", site, "words", out.WordCount, "method", out.Method)
	return out, nil
}
