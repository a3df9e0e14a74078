// Package panel implements the side-panel surface: the operations the UI
// exposes to the user, backed by the store and the chat orchestrator.
package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/companygpt/sidekick/internal/agent"
	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/chat"
	"github.com/companygpt/sidekick/internal/config"
	"github.com/companygpt/sidekick/internal/events"
	"github.com/companygpt/sidekick/internal/inject"
	"github.com/companygpt/sidekick/internal/store"
	"github.com/companygpt/sidekick/internal/tenant"
)

// Store paths owned by the panel.
const (
	PathOpen         = "panel.open"
	PathView         = "panel.view"
	PathLoginOverlay = "panel.loginOverlay"
	PathInputEnabled = "panel.inputEnabled"
	PathError        = "ui.error"
)

// View is one of the panel's screens.
type View string

const (
	ViewChat     View = "chat"
	ViewUpload   View = "upload"
	ViewSettings View = "settings"
)

// ContextAction is a one-click action over the current page context.
type ContextAction string

const (
	ActionSummarize     ContextAction = "summarize"
	ActionReply         ContextAction = "reply"
	ActionReplyWithData ContextAction = "reply-with-data"
	ActionAnalyze       ContextAction = "analyze"
	ActionAskQuestions  ContextAction = "ask-questions"
)

// Variation names a rewrite direction for the last assistant reply.
type Variation string

const (
	VariationFormal   Variation = "formeller"
	VariationInformal Variation = "informeller"
	VariationShorter  Variation = "kürzer"
	VariationLonger   Variation = "länger"
)

const (
	// maxConversationMessages is the clamp on the conversation list; older
	// entries fall off the front.
	maxConversationMessages = 100
	// errorClearDelay is how long a surfaced UI error stays before the
	// store middleware clears it.
	errorClearDelay = 5 * time.Second
)

// actionPrompts are the canned instructions behind the context actions.
var actionPrompts = map[ContextAction]string{
	ActionSummarize:    "Fasse den folgenden Inhalt prägnant zusammen.",
	ActionReply:        "Beantworte diese E-Mail professionell und freundlich.",
	ActionAnalyze:      "Analysiere den folgenden Inhalt und nenne die wichtigsten Punkte.",
	ActionAskQuestions: "Welche Rückfragen sollte ich zu diesem Inhalt stellen?",
}

// Panel is the side-panel surface. All state lives in the store so that
// other contexts observe the same view of the world.
type Panel struct {
	cfg      *config.Config
	store    *store.Store
	bus      *events.Bus
	resolver *tenant.Resolver
	orch     *chat.Orchestrator
	dir      *chat.Directory
	agents   *agent.Manager
	injector *inject.Injector
	tabs     browser.Tabs
	storage  browser.Storage
	logger   *log.Logger

	tenant string
}

// New builds the panel and installs its store middlewares: the conversation
// clamp and the auto-clearing UI error slot. storage may be nil; the panel
// surface state then starts from scratch each session.
func New(cfg *config.Config, st *store.Store, bus *events.Bus, resolver *tenant.Resolver, orch *chat.Orchestrator, dir *chat.Directory, agents *agent.Manager, injector *inject.Injector, tabs browser.Tabs, storage browser.Storage, logger *log.Logger) *Panel {
	if logger == nil {
		logger = log.Default()
	}
	st.Use(store.ClampList(chat.PathMessages, maxConversationMessages))
	st.Use(store.AutoClearError(PathError, errorClearDelay))

	p := &Panel{
		cfg:      cfg,
		store:    st,
		bus:      bus,
		resolver: resolver,
		orch:     orch,
		dir:      dir,
		agents:   agents,
		injector: injector,
		tabs:     tabs,
		storage:  storage,
		logger:   logger.With("component", "panel"),
	}
	p.setBatch(map[string]any{
		PathOpen:         false,
		PathView:         p.restoredView(),
		PathLoginOverlay: false,
		PathInputEnabled: false,
	})
	st.Subscribe(PathOpen, func(store.Change) { p.saveSurfaceState() })
	st.Subscribe(PathView, func(store.Change) { p.saveSurfaceState() })
	return p
}

// surfaceState is the panel surface snapshot persisted across sessions.
type surfaceState struct {
	Open bool   `json:"open"`
	View string `json:"view"`
}

// restoredView returns the previous session's view. The open flag is
// persisted too but not restored: opening requires the auth bootstrap, so
// the host always calls Open explicitly.
func (p *Panel) restoredView() View {
	if p.storage == nil {
		return ViewChat
	}
	raw, ok, err := p.storage.Get(context.Background(), browser.KeyAppState)
	if err != nil || !ok || raw == "" {
		return ViewChat
	}
	var s surfaceState
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return ViewChat
	}
	switch View(s.View) {
	case ViewChat, ViewUpload, ViewSettings:
		return View(s.View)
	}
	return ViewChat
}

func (p *Panel) saveSurfaceState() {
	if p.storage == nil {
		return
	}
	open, _ := p.store.Get(PathOpen).(bool)
	s := surfaceState{Open: open, View: fmt.Sprint(p.store.Get(PathView))}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := p.storage.Set(context.Background(), browser.KeyAppState, string(raw)); err != nil {
		p.logger.Warn("surface state write failed", "error", err)
	}
}

// Open resolves the tenant, bootstraps the chat when authenticated, and
// otherwise raises the login overlay with the chat input disabled.
func (p *Panel) Open(ctx context.Context) error {
	snap := p.resolver.Resolve(ctx, false)
	p.applyAuth(snap)
	if err := p.store.Set(PathOpen, true); err != nil {
		return err
	}
	if snap.None() || !snap.Authenticated {
		return nil
	}

	p.tenant = snap.Tenant
	if err := p.orch.Bootstrap(ctx, snap.Tenant); err != nil {
		p.surfaceError(chat.KindOf(err), err.Error())
		return err
	}
	return nil
}

// Close hides the panel. State survives for the next Open.
func (p *Panel) Close() {
	if err := p.store.Set(PathOpen, false); err != nil {
		p.logger.Warn("close failed", "error", err)
	}
}

// RecheckAuth re-resolves the tenant, bypassing the auth cache. The login
// overlay's re-check action lands here.
func (p *Panel) RecheckAuth(ctx context.Context) tenant.Snapshot {
	snap := p.resolver.Resolve(ctx, true)
	p.applyAuth(snap)
	if !snap.None() && snap.Authenticated && p.tenant == "" {
		p.tenant = snap.Tenant
		if err := p.orch.Bootstrap(ctx, snap.Tenant); err != nil {
			p.surfaceError(chat.KindOf(err), err.Error())
		}
	}
	return snap
}

// Watch keeps the overlay in sync with auth transitions until ctx ends.
func (p *Panel) Watch(ctx context.Context) {
	ch := p.bus.Subscribe(ctx, events.TypeFilter(events.AuthStateChanged))
	go func() {
		for ev := range ch {
			payload, ok := ev.Payload.(events.AuthChangePayload)
			if !ok {
				continue
			}
			p.setBatch(map[string]any{
				PathLoginOverlay: !payload.Authenticated,
				PathInputEnabled: payload.Authenticated,
			})
			if payload.Authenticated && payload.Tenant != "" {
				p.tenant = payload.Tenant
			}
		}
	}()
}

// SwitchView selects one of the panel screens.
func (p *Panel) SwitchView(v View) error {
	switch v {
	case ViewChat, ViewUpload, ViewSettings:
		return p.store.Set(PathView, v)
	default:
		return fmt.Errorf("unknown view %q", v)
	}
}

// View returns the current screen.
func (p *Panel) View() View {
	if v, ok := p.store.Get(PathView).(View); ok {
		return v
	}
	return ViewChat
}

// InputEnabled reports whether the chat input accepts text.
func (p *Panel) InputEnabled() bool {
	enabled, _ := p.store.Get(PathInputEnabled).(bool)
	return enabled
}

// LoginOverlay reports whether the login overlay is showing.
func (p *Panel) LoginOverlay() bool {
	overlay, _ := p.store.Get(PathLoginOverlay).(bool)
	return overlay
}

// SendMessage sends free-form user text to the assistant.
func (p *Panel) SendMessage(ctx context.Context, text string) (chat.Message, error) {
	if !p.InputEnabled() {
		return chat.Message{}, chat.NewError(chat.KindUnauthenticated, "chat input is disabled", nil)
	}
	msg, err := p.orch.Send(ctx, text, chat.SendOptions{})
	if err != nil {
		p.surfaceError(chat.KindOf(err), err.Error())
	}
	return msg, err
}

// TriggerAction extracts the active page and runs the chosen context action
// over it.
func (p *Panel) TriggerAction(ctx context.Context, action ContextAction, selection string) (chat.Message, error) {
	if !p.InputEnabled() {
		return chat.Message{}, chat.NewError(chat.KindUnauthenticated, "chat input is disabled", nil)
	}

	tab, err := p.tabs.Active(ctx)
	if err != nil {
		return chat.Message{}, chat.NewError(chat.KindExtractionFailed, "no active tab", err)
	}
	a, err := p.agents.Attach(ctx, tab)
	if err != nil {
		return chat.Message{}, err
	}
	pctx, err := a.ExtractContent(ctx, selection)
	if err != nil {
		// An unconvertible document still yields an advisory the model can
		// work with. Tell the user and run the action over it anyway.
		if chat.KindOf(err) != chat.KindUnsupportedDocument || pctx.Text == "" {
			p.surfaceError(chat.KindOf(err), err.Error())
			return chat.Message{}, err
		}
		p.surfaceError(chat.KindUnsupportedDocument, err.Error())
	}

	switch action {
	case ActionReplyWithData:
		msg, err := p.orch.ReplyWithKnowledge(ctx, pctx.Text)
		if err != nil {
			p.surfaceError(chat.KindOf(err), err.Error())
		}
		return msg, err
	case ActionSummarize, ActionReply, ActionAnalyze, ActionAskQuestions:
		opts := chat.SendOptions{Context: &pctx}
		if action == ActionReply {
			opts.Intent = chat.IntentEmailReply
		}
		msg, err := p.orch.Send(ctx, actionPrompts[action], opts)
		if err != nil {
			p.surfaceError(chat.KindOf(err), err.Error())
		}
		return msg, err
	default:
		return chat.Message{}, fmt.Errorf("unknown context action %q", action)
	}
}

// SelectFolder fuzzy-matches the query against the selectable knowledge-base
// folders and stores the best hit. An empty query clears the selection.
func (p *Panel) SelectFolder(ctx context.Context, query string) (chat.Folder, error) {
	if strings.TrimSpace(query) == "" {
		return chat.Folder{}, p.store.Set(chat.PathSelectedFolder, nil)
	}

	folders, err := p.dir.MediaFolders(ctx, p.tenant)
	if err != nil {
		return chat.Folder{}, err
	}
	names := make([]string, len(folders))
	for i, f := range folders {
		names[i] = f.Name
	}

	ranks := fuzzy.RankFindNormalizedFold(query, names)
	if len(ranks) == 0 {
		return chat.Folder{}, fmt.Errorf("no folder matches %q", query)
	}
	sort.Sort(ranks)
	folder := folders[ranks[0].OriginalIndex]
	if err := p.store.Set(chat.PathSelectedFolder, folder); err != nil {
		return chat.Folder{}, err
	}
	p.logger.Info("folder selected", "folder", folder.Name, "query", query)
	return folder, nil
}

// InsertLastReply writes the most recent assistant reply into the active
// mail tab, falling back to the clipboard as the injector decides.
func (p *Panel) InsertLastReply(ctx context.Context) (inject.Record, error) {
	last, ok := p.lastAssistantReply()
	if !ok {
		return inject.Record{}, fmt.Errorf("no assistant reply to insert")
	}
	rec, err := p.injector.Insert(ctx, last.Content)
	if err != nil {
		p.surfaceError(chat.KindOf(err), err.Error())
	}
	return rec, err
}

// RequestVariation re-sends the last assistant reply tagged with the
// variation marker, which keeps the email-reply intent alive.
func (p *Panel) RequestVariation(ctx context.Context, v Variation) (chat.Message, error) {
	switch v {
	case VariationFormal, VariationInformal, VariationShorter, VariationLonger:
	default:
		return chat.Message{}, fmt.Errorf("unknown variation %q", v)
	}
	last, ok := p.lastAssistantReply()
	if !ok {
		return chat.Message{}, fmt.Errorf("no assistant reply to vary")
	}

	text := fmt.Sprintf("%s Formuliere die folgende Antwort %s:\n\n%s", chat.VariationMarker, v, last.Content)
	msg, err := p.orch.Send(ctx, text, chat.SendOptions{})
	if err != nil {
		p.surfaceError(chat.KindOf(err), err.Error())
	}
	return msg, err
}

// ClearChat drops the conversation and the active intent.
func (p *Panel) ClearChat() error {
	return p.orch.ClearConversation()
}

func (p *Panel) lastAssistantReply() (chat.Message, bool) {
	msgs := p.orch.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAssistant && !msgs[i].IsError {
			return msgs[i], true
		}
	}
	return chat.Message{}, false
}

func (p *Panel) applyAuth(snap tenant.Snapshot) {
	authenticated := !snap.None() && snap.Authenticated
	p.setBatch(map[string]any{
		PathLoginOverlay: !authenticated,
		PathInputEnabled: authenticated,
	})
	if authenticated {
		return
	}
	kind := chat.KindUnauthenticated
	if snap.None() {
		kind = chat.KindNoTenant
	}
	p.surfaceError(kind, "Bitte melde dich bei CompanyGPT an.")
}

func (p *Panel) surfaceError(kind chat.Kind, message string) {
	if err := p.store.Set(PathError, map[string]any{"kind": string(kind), "message": message}); err != nil {
		p.logger.Warn("error surface failed", "error", err)
	}
}

func (p *Panel) setBatch(updates map[string]any) {
	if err := p.store.Batch(updates); err != nil {
		p.logger.Warn("panel state write failed", "error", err)
	}
}
