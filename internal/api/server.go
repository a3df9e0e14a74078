// Package api is the message surface between the side panel, the content
// agents and the background services: a request/response endpoint for the
// typed messages and a websocket feed for one-way notifications.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/companygpt/sidekick/internal/agent"
	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/config"
	"github.com/companygpt/sidekick/internal/convert"
	"github.com/companygpt/sidekick/internal/events"
	"github.com/companygpt/sidekick/internal/httpx"
	"github.com/companygpt/sidekick/internal/inject"
	"github.com/companygpt/sidekick/internal/tenant"
)

// Server hosts the message endpoint and the websocket feed.
type Server struct {
	cfg      *config.Config
	resolver *tenant.Resolver
	broker   *httpx.Broker
	agents   *agent.Manager
	conv     *convert.Converter
	injector *inject.Injector
	tabs     browser.Tabs
	bus      *events.Bus
	logger   *log.Logger

	router   *mux.Router
	upgrader websocket.Upgrader
	server   *http.Server
}

func NewServer(cfg *config.Config, resolver *tenant.Resolver, broker *httpx.Broker, agents *agent.Manager, conv *convert.Converter, injector *inject.Injector, tabs browser.Tabs, bus *events.Bus, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		cfg:      cfg,
		resolver: resolver,
		broker:   broker,
		agents:   agents,
		conv:     conv,
		injector: injector,
		tabs:     tabs,
		bus:      bus,
		logger:   logger.With("component", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The surface binds to loopback; the panel and the agents are
			// local peers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/messages", s.handleMessage).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

// ServeHTTP lets tests drive the router directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start listens on the configured loopback address until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the websocket feed stays open
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown", "error", err)
		}
	}()

	s.logger.Info("message surface listening", "addr", s.cfg.ListenAddr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
