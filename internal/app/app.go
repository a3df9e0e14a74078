// Package app wires the assistant together: configuration, the browser
// surfaces, tenant resolution, the store, chat, extraction, injection, the
// message API and the panel.
package app

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/companygpt/sidekick/internal/agent"
	"github.com/companygpt/sidekick/internal/api"
	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/chat"
	"github.com/companygpt/sidekick/internal/config"
	"github.com/companygpt/sidekick/internal/convert"
	"github.com/companygpt/sidekick/internal/events"
	"github.com/companygpt/sidekick/internal/extract"
	"github.com/companygpt/sidekick/internal/httpx"
	"github.com/companygpt/sidekick/internal/inject"
	"github.com/companygpt/sidekick/internal/panel"
	"github.com/companygpt/sidekick/internal/store"
	"github.com/companygpt/sidekick/internal/tenant"
)

// Host bundles the browser surfaces the assistant runs against. Production
// builds adapt the extension host APIs; tests pass the in-memory fakes.
type Host struct {
	Cookies   browser.CookieStore
	Tabs      browser.Tabs
	Page      browser.Scripting
	Clipboard browser.Clipboard
	Storage   browser.Storage
}

// persistPaths is the allow-listed store slice written to durable storage.
// The panel surface state is persisted separately by the panel itself.
var persistPaths = []string{
	chat.PathSelectedFolder,
	"user.preferences",
}

// App holds the assembled assistant.
type App struct {
	Config       *config.Config
	Store        *store.Store
	Bus          *events.Bus
	Resolver     *tenant.Resolver
	Watcher      *tenant.Watcher
	Broker       *httpx.Broker
	Pipeline     *extract.Pipeline
	Converter    *convert.Converter
	Directory    *chat.Directory
	Orchestrator *chat.Orchestrator
	Agents       *agent.Manager
	Injector     *inject.Injector
	Server       *api.Server
	Panel        *panel.Panel

	host   Host
	logger *log.Logger
}

// New assembles the assistant against the given host surfaces.
func New(cfg *config.Config, host Host, logger *log.Logger) *App {
	if logger == nil {
		logger = log.Default()
	}

	bus := events.NewBus(logger)
	st := store.New(map[string]any{}, logger)
	st.Use(store.RejectExpiredToken("session.token", "session.expiresAt", panel.PathLoginOverlay, nil))

	broker := httpx.NewBroker(cfg, host.Cookies, nil, logger)
	resolver := tenant.NewResolver(cfg, host.Cookies, host.Tabs, host.Storage, logger)
	watcher := tenant.NewWatcher(resolver, bus, logger)

	pipeline := extract.NewPipeline(cfg, logger)
	conv := convert.New(logger)
	dir := chat.NewDirectory(cfg, broker, host.Storage, logger)
	orch := chat.NewOrchestrator(cfg, broker, st, bus, dir, logger)
	agents := agent.NewManager(cfg, host.Page, broker, pipeline, conv, bus, logger)
	injector := inject.New(cfg, host.Tabs, host.Page, host.Clipboard, logger)

	server := api.NewServer(cfg, resolver, broker, agents, conv, injector, host.Tabs, bus, logger)
	pnl := panel.New(cfg, st, bus, resolver, orch, dir, agents, injector, host.Tabs, host.Storage, logger)

	return &App{
		Config:       cfg,
		Store:        st,
		Bus:          bus,
		Resolver:     resolver,
		Watcher:      watcher,
		Broker:       broker,
		Pipeline:     pipeline,
		Converter:    conv,
		Directory:    dir,
		Orchestrator: orch,
		Agents:       agents,
		Injector:     injector,
		Server:       server,
		Panel:        pnl,
		host:         host,
		logger:       logger.With("component", "app"),
	}
}

// Run starts the background pieces and serves the message API until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Store.EnablePersistence(a.host.Storage, persistPaths, a.Config.SyncDebounce); err != nil {
		a.logger.Warn("state persistence unavailable", "error", err)
	}
	a.Store.AttachBus(ctx, a.Bus, a.Config.SyncDebounce)
	a.Panel.Watch(ctx)

	if changes, err := a.host.Storage.Watch(ctx); err != nil {
		a.logger.Warn("state watching unavailable", "error", err)
	} else {
		go func() {
			for range changes {
				a.Store.ReloadPersistence()
			}
		}()
	}

	go func() {
		if err := a.Watcher.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("cookie watcher stopped", "error", err)
		}
	}()

	if err := a.Panel.Open(ctx); err != nil {
		a.logger.Warn("panel bootstrap failed", "error", err)
	}

	err := a.Server.Start(ctx)
	a.shutdown()
	return err
}

func (a *App) shutdown() {
	a.Agents.Shutdown()
	a.Store.FlushPersistence()
	a.Bus.Shutdown()
	a.logger.Info("assistant stopped")
}
