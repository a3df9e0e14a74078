// Package agent runs the per-tab content agents: extraction, document
// fetching and change observation for the page a tab is showing.
package agent

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/chat"
	"github.com/companygpt/sidekick/internal/config"
	"github.com/companygpt/sidekick/internal/convert"
	"github.com/companygpt/sidekick/internal/events"
	"github.com/companygpt/sidekick/internal/extract"
	"github.com/companygpt/sidekick/internal/httpx"
)

// observeInterval is how often an attached agent re-snapshots its page to
// detect content changes.
const observeInterval = 3 * time.Second

// Manager owns one agent per attached tab and tears them down when the
// tab goes away.
type Manager struct {
	cfg      *config.Config
	page     browser.Scripting
	broker   *httpx.Broker
	pipeline *extract.Pipeline
	conv     *convert.Converter
	bus      *events.Bus
	logger   *log.Logger

	interval time.Duration

	mu     sync.Mutex
	agents map[int]*Agent
}

func NewManager(cfg *config.Config, page browser.Scripting, broker *httpx.Broker, pipeline *extract.Pipeline, conv *convert.Converter, bus *events.Bus, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cfg:      cfg,
		page:     page,
		broker:   broker,
		pipeline: pipeline,
		conv:     conv,
		bus:      bus,
		logger:   logger.With("component", "agent"),
		interval: observeInterval,
		agents:   make(map[int]*Agent),
	}
}

// Attach ensures a content agent exists in the tab and starts observing
// it. Attaching an already-attached tab returns the existing agent.
func (m *Manager) Attach(ctx context.Context, tab browser.Tab) (*Agent, error) {
	m.mu.Lock()
	if existing, ok := m.agents[tab.ID]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.mu.Unlock()

	present, err := m.page.HasAgent(ctx, tab.ID)
	if err != nil {
		return nil, fmt.Errorf("agent ping: %w", err)
	}
	if !present {
		if err := m.page.InjectAgent(ctx, tab.ID); err != nil {
			return nil, fmt.Errorf("agent injection: %w", err)
		}
	}

	observeCtx, cancel := context.WithCancel(context.Background())
	a := &Agent{
		tab:      tab,
		manager:  m,
		cancel:   cancel,
		interval: m.interval,
	}

	m.mu.Lock()
	m.agents[tab.ID] = a
	m.mu.Unlock()

	go a.observe(observeCtx)
	m.logger.Debug("agent attached", "tab", tab.ID, "url", tab.URL)
	return a, nil
}

// Detach stops the tab's agent and its observer. Detaching an unknown tab
// is a no-op.
func (m *Manager) Detach(tabID int) {
	m.mu.Lock()
	a, ok := m.agents[tabID]
	if ok {
		delete(m.agents, tabID)
	}
	m.mu.Unlock()
	if ok {
		a.cancel()
		m.logger.Debug("agent detached", "tab", tabID)
	}
}

// Shutdown detaches every agent.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	agents := m.agents
	m.agents = make(map[int]*Agent)
	m.mu.Unlock()
	for _, a := range agents {
		a.cancel()
	}
}

// Agent serves one tab.
type Agent struct {
	tab      browser.Tab
	manager  *Manager
	cancel   context.CancelFunc
	interval time.Duration

	mu       sync.Mutex
	lastHash uint64
}

// Tab returns the tab this agent serves.
func (a *Agent) Tab() browser.Tab { return a.tab }

// ExtractContent snapshots the page and extracts its context. Pages whose
// content lives behind a fetch (virtualized Google Docs, SharePoint
// documents) are completed through the broker with the browser's ambient
// cookies.
func (a *Agent) ExtractContent(ctx context.Context, selection string) (extract.Context, error) {
	m := a.manager

	html, err := m.page.SnapshotDOM(ctx, a.tab.ID)
	if err != nil {
		return extract.Context{}, chat.NewError(chat.KindContextInvalidated, "page snapshot failed", err)
	}

	pctx, err := m.pipeline.Extract(html, a.tab.URL, selection)
	if err != nil {
		return extract.Context{}, chat.NewError(chat.KindExtractionFailed, "page parse failed", err)
	}

	if pctx.Doc != nil && pctx.Doc.NeedsExport {
		if err := a.completeDocsExport(ctx, &pctx); err != nil {
			return pctx, err
		}
	}
	if pctx.Site == extract.SiteSharePoint {
		if err := a.completeSharePoint(ctx, &pctx); err != nil {
			return pctx, err
		}
	}

	if pctx.Text == "" && pctx.Selection == "" {
		return pctx, chat.NewError(chat.KindExtractionFailed, "no usable content on page", nil)
	}
	return pctx, nil
}

// completeDocsExport replaces a too-thin DOM extraction with the
// document's plain-text export.
func (a *Agent) completeDocsExport(ctx context.Context, pctx *extract.Context) error {
	m := a.manager
	data, _, err := m.broker.Download(ctx, m.cfg.DocsExportURL(pctx.Doc.DocID))
	if err != nil {
		return chat.NewError(chat.KindExtractionFailed, "docs export fetch failed", err)
	}
	pctx.Text = strings.TrimSpace(string(data))
	pctx.Method = "export extraction"
	pctx.WordCount = len(strings.Fields(pctx.Text))
	m.logger.Debug("docs export fetched", "doc", pctx.Doc.DocID, "chars", len(pctx.Text))
	return nil
}

// completeSharePoint downloads the viewer's WOPI file and converts it.
func (a *Agent) completeSharePoint(ctx context.Context, pctx *extract.Context) error {
	m := a.manager
	if pctx.SharePoint == nil || pctx.SharePoint.FileURL == "" {
		return chat.NewError(chat.KindExtractionFailed, "no file reference in viewer", nil)
	}

	data, contentType, err := m.broker.Download(ctx, pctx.SharePoint.FileURL)
	if err != nil {
		return chat.NewError(chat.KindExtractionFailed, "document download failed", err)
	}

	res := m.conv.Convert(pctx.SharePoint.FileName, contentType, data)
	pctx.Method = convert.MethodName(res.Format)
	pctx.Text = res.Text
	if pctx.Text == "" {
		pctx.Text = res.Advisory
	}
	pctx.WordCount = len(strings.Fields(pctx.Text))
	if !res.OK && res.Text == "" {
		// The advisory still enters the conversation as context.
		return chat.NewError(chat.KindUnsupportedDocument, res.Advisory, nil)
	}
	return nil
}

// InsertReply checks the agent is still alive and reports readiness for a
// compose write; the injector drives the actual editor flow.
func (a *Agent) InsertReply(ctx context.Context) error {
	present, err := a.manager.page.HasAgent(ctx, a.tab.ID)
	if err != nil || !present {
		return chat.NewError(chat.KindContextInvalidated, "content agent gone", err)
	}
	return nil
}

// observe re-snapshots the page on an interval and publishes a content
// update whenever the hash moves.
func (a *Agent) observe(ctx context.Context) {
	m := a.manager
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		html, err := m.page.SnapshotDOM(ctx, a.tab.ID)
		if err != nil {
			continue
		}
		h := fnv.New64a()
		h.Write([]byte(html))
		sum := h.Sum64()

		a.mu.Lock()
		changed := a.lastHash != 0 && a.lastHash != sum
		a.lastHash = sum
		a.mu.Unlock()

		if changed {
			site := m.pipeline.DetectSite(a.tab.URL)
			m.bus.Publish(events.ContentUpdated, events.ContentUpdatedPayload{Site: string(site), URL: a.tab.URL})
		}
	}
}
