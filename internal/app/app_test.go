package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/chat"
	"github.com/companygpt/sidekick/internal/config"
)

func testHost() Host {
	return Host{
		Cookies:   browser.NewMemoryCookies(),
		Tabs:      browser.NewMemoryTabs(browser.Tab{ID: 1, URL: "https://example.org/", Title: "Beispiel"}),
		Page:      &browser.FakePage{AgentPresent: true},
		Clipboard: &browser.MemoryClipboard{},
		Storage:   browser.NewMemoryStorage(),
	}
}

func TestNewWiresEverything(t *testing.T) {
	a := New(config.Default(), testHost(), log.New(io.Discard))

	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.Bus)
	assert.NotNil(t, a.Resolver)
	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.Agents)
	assert.NotNil(t, a.Server)
	assert.NotNil(t, a.Panel)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	a := New(cfg, testHost(), log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}

func TestRunReloadsExternallyRewrittenState(t *testing.T) {
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	host := testHost()
	a := New(cfg, host, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	// Another context rewrites the persisted slice directly in storage.
	rewritten := `{"chat.selectedFolder":"kb-7","ui":{"view":"chat"}}`
	require.NoError(t, host.Storage.Set(ctx, browser.KeyStoreState, rewritten))

	require.Eventually(t, func() bool {
		return a.Store.Get(chat.PathSelectedFolder) == "kb-7"
	}, 2*time.Second, 10*time.Millisecond, "external rewrite never reached the store")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}
