package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companygpt/sidekick/internal/agent"
	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/config"
	"github.com/companygpt/sidekick/internal/convert"
	"github.com/companygpt/sidekick/internal/events"
	"github.com/companygpt/sidekick/internal/extract"
	"github.com/companygpt/sidekick/internal/httpx"
	"github.com/companygpt/sidekick/internal/inject"
	"github.com/companygpt/sidekick/internal/tenant"
)

type fixture struct {
	api     *httptest.Server
	backend *httptest.Server
	page    *browser.FakePage
	tabs    *browser.MemoryTabs
	cookies *browser.MemoryCookies
	clip    *browser.MemoryClipboard
	bus     *events.Bus
}

func newFixture(t *testing.T, backendHandler http.Handler) *fixture {
	t.Helper()
	if backendHandler == nil {
		backendHandler = http.NotFoundHandler()
	}
	backend := httptest.NewServer(backendHandler)
	t.Cleanup(backend.Close)

	cfg := config.Default()
	cfg.DocsExportBase = backend.URL
	logger := log.New(io.Discard)

	cookies := browser.NewMemoryCookies()
	tabs := browser.NewMemoryTabs(browser.Tab{ID: 1, URL: "https://example.org/", Title: "Beispiel"})
	page := &browser.FakePage{AgentPresent: true}
	clip := &browser.MemoryClipboard{}
	storage := browser.NewMemoryStorage()
	bus := events.NewBus(logger)
	t.Cleanup(bus.Shutdown)

	broker := httpx.NewBroker(cfg, cookies, backend.Client(), logger)
	resolver := tenant.NewResolver(cfg, cookies, tabs, storage, logger)
	conv := convert.New(logger)
	agents := agent.NewManager(cfg, page, broker, extract.NewPipeline(cfg, logger), conv, bus, logger)
	t.Cleanup(agents.Shutdown)
	injector := inject.New(cfg, tabs, page, clip, logger)

	server := NewServer(cfg, resolver, broker, agents, conv, injector, tabs, bus, logger)
	apiServer := httptest.NewServer(server)
	t.Cleanup(apiServer.Close)

	return &fixture{api: apiServer, backend: backend, page: page, tabs: tabs, cookies: cookies, clip: clip, bus: bus}
}

func (f *fixture) post(t *testing.T, msgType string, payload any) map[string]any {
	t.Helper()
	env := map[string]any{"type": msgType}
	if payload != nil {
		env["payload"] = payload
	}
	body, err := json.Marshal(env)
	require.NoError(t, err)

	resp, err := http.Post(f.api.URL+"/messages", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestCheckAuth(t *testing.T) {
	f := newFixture(t, nil)
	f.cookies.Put(browser.Cookie{
		Name:         "cgpt-session",
		Domain:       "acme.company-gpt.com",
		Value:        "tok",
		LastAccessed: 100,
	})

	out := f.post(t, TypeCheckAuth, nil)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, true, out["isAuthenticated"])
	assert.Equal(t, "acme", out["tenant"])
	assert.Equal(t, false, out["multiTenant"])
}

func TestCheckAuthUnauthenticated(t *testing.T) {
	f := newFixture(t, nil)

	out := f.post(t, TypeCheckAuth, nil)
	assert.Equal(t, false, out["isAuthenticated"])
	assert.Equal(t, "", out["tenant"])
}

func TestAPIRequestProxy(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, `{"answer":42}`)
	}))

	out := f.post(t, TypeAPIRequest, map[string]any{
		"url":    f.backend.URL + "/api/thing",
		"method": "POST",
		"body":   map[string]any{"q": "?"},
	})
	assert.Equal(t, true, out["ok"])
	data := out["data"].(map[string]any)
	assert.EqualValues(t, 42, data["answer"])
}

func TestGetPageContext(t *testing.T) {
	f := newFixture(t, nil)
	f.page.SetDOM(`<html><head><title>Artikel</title></head><body><article>Die Quartalszahlen sind da.</article></body></html>`)

	out := f.post(t, TypeGetPageContext, map[string]any{"selection": "Quartalszahlen"})
	require.Equal(t, true, out["ok"], "error: %v", out["error"])

	pctx := out["context"].(map[string]any)
	assert.Equal(t, "generic", pctx["pageType"])
	assert.Contains(t, pctx["mainText"], "Die Quartalszahlen sind da.")
	assert.Equal(t, "Quartalszahlen", pctx["selectedText"])
}

func TestExtractGoogleDocs(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/document/d/doc-1/export") {
			fmt.Fprint(w, "Exportierter Text.")
			return
		}
		http.NotFound(w, r)
	}))

	out := f.post(t, TypeExtractGoogleDocs, map[string]any{"docId": "doc-1"})
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "Exportierter Text.", out["content"])
	assert.EqualValues(t, len("Exportierter Text."), out["length"])
}

func TestExtractSharePointDocument(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Reiner Text aus der Datei.")
	}))

	out := f.post(t, TypeExtractSharePoint, map[string]any{
		"sourceDoc": "{guid}",
		"fileUrl":   f.backend.URL + "/docs/notiz.txt",
	})
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "Reiner Text aus der Datei.", out["content"])
	assert.Equal(t, "txt", out["fileType"])
}

func TestInsertEmailReplyClipboardPath(t *testing.T) {
	f := newFixture(t, nil) // active tab is not a mail host

	out := f.post(t, TypeInsertEmailReply, map[string]any{"data": "die Antwort", "provider": "gmail"})
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "clipboard", out["method"])

	text, ok := f.clip.Last()
	require.True(t, ok)
	assert.Equal(t, "die Antwort", text)
}

func TestTabInfo(t *testing.T) {
	f := newFixture(t, nil)

	out := f.post(t, TypeTabInfo, nil)
	assert.EqualValues(t, 1, out["id"])
	assert.Equal(t, "https://example.org/", out["url"])
}

func TestUnknownMessageType(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := http.Post(f.api.URL+"/messages", "application/json",
		strings.NewReader(`{"type":"NOPE"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketPush(t *testing.T) {
	f := newFixture(t, nil)

	wsURL := "ws" + strings.TrimPrefix(f.api.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a moment to register the subscription.
	time.Sleep(20 * time.Millisecond)
	f.bus.Publish(events.AuthStateChanged, events.AuthChangePayload{Authenticated: true, Tenant: "acme"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "AUTH_STATE_CHANGED", msg.Type)
	assert.Contains(t, string(msg.Payload), `"acme"`)
}
