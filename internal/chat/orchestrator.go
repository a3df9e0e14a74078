package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/companygpt/sidekick/internal/config"
	"github.com/companygpt/sidekick/internal/events"
	"github.com/companygpt/sidekick/internal/extract"
	"github.com/companygpt/sidekick/internal/httpx"
	"github.com/companygpt/sidekick/internal/store"
)

// Store paths owned by the orchestrator.
const (
	PathMessages       = "chat.messages"
	PathCurrentIntent  = "chat.currentIntent"
	PathSelectedFolder = "chat.selectedFolder"
	PathSessionID      = "chat.sessionId"
)

// SendOptions modifies a single send.
type SendOptions struct {
	// Context is the extracted page context to prepend, if any.
	Context *extract.Context
	// Intent forces the intent instead of inferring it.
	Intent Intent
}

// Orchestrator drives the chat conversation: intent resolution, prompt
// composition, the POST to the tenant's chat endpoint and the store writes
// around it.
type Orchestrator struct {
	cfg    *config.Config
	broker *httpx.Broker
	store  *store.Store
	bus    *events.Bus
	dir    *Directory
	logger *log.Logger

	tenant   string
	folderID string
	roleID   string

	// chatURL is a hook for tests to point sends at a local server.
	chatURL func(tenant string) string
}

func NewOrchestrator(cfg *config.Config, broker *httpx.Broker, st *store.Store, bus *events.Bus, dir *Directory, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		broker:  broker,
		store:   st,
		bus:     bus,
		dir:     dir,
		logger:  logger.With("component", "chat"),
		chatURL: cfg.ChatURL,
	}
}

// Bootstrap loads the tenant's folders and roles and remembers the default
// chat folder and role. Safe to call again after a tenant switch.
func (o *Orchestrator) Bootstrap(ctx context.Context, tenant string) error {
	folderID, err := o.dir.RootChatFolder(ctx, tenant)
	if err != nil {
		return err
	}
	role, err := o.dir.DefaultRole(ctx, tenant)
	if err != nil {
		return err
	}
	o.tenant = tenant
	o.folderID = folderID
	o.roleID = role.ID
	o.logger.Info("chat bootstrap complete", "tenant", tenant, "folder", folderID, "role", role.ID)
	return nil
}

// FolderID returns the default chat folder id from the last bootstrap.
func (o *Orchestrator) FolderID() string { return o.folderID }

// Messages returns the current conversation.
func (o *Orchestrator) Messages() []Message {
	msgs, _ := o.store.Get(PathMessages).([]Message)
	return msgs
}

// CurrentIntent returns the active intent, or "" when idle.
func (o *Orchestrator) CurrentIntent() Intent {
	intent, _ := o.store.Get(PathCurrentIntent).(Intent)
	return intent
}

// SelectedFolder returns the selected knowledge-base folder, if any.
func (o *Orchestrator) SelectedFolder() (Folder, bool) {
	f, ok := o.store.Get(PathSelectedFolder).(Folder)
	return f, ok
}

// SessionID returns the chat session id, generating one on first use.
func (o *Orchestrator) SessionID() string {
	if id, ok := o.store.Get(PathSessionID).(string); ok && id != "" {
		return id
	}
	id := uuid.NewString()
	if err := o.store.Set(PathSessionID, id); err != nil {
		o.logger.Error("failed to persist session id", "error", err)
	}
	return id
}

// Send runs one conversation turn: resolve the intent, compose the
// content, append the user message, POST the conversation and append the
// assistant reply.
//
// Server-side failures (5xx, 403, transport) do not return an error; they
// append a flagged assistant message so the conversation shows what
// happened. Other failures revert the optimistic user append and return.
func (o *Orchestrator) Send(ctx context.Context, text string, opts SendOptions) (Message, error) {
	intent := ResolveIntent(opts.Intent, text, opts.Context)
	if err := o.store.Set(PathCurrentIntent, intent); err != nil {
		return Message{}, err
	}

	userMsg := NewMessage(RoleUser, composeContent(text, opts.Context))
	userMsg.OriginalIntent = intent
	if err := o.appendMessage(userMsg); err != nil {
		return Message{}, err
	}

	reply, err := o.post(ctx, o.conversationBody())
	if err != nil {
		return o.handleSendFailure(userMsg, err)
	}

	assistant := NewMessage(RoleAssistant, reply)
	assistant.Mode = o.selectedMode()
	if folder, ok := o.SelectedFolder(); ok {
		assistant.UsedDataCollection = folder.Name
		assistant.FolderID = folder.ID
	}
	if intent == IntentEmailReply {
		assistant.OfferInsert = true
	}
	if err := o.appendMessage(assistant); err != nil {
		return Message{}, err
	}

	o.clearIntent()
	return assistant, nil
}

// handleSendFailure distinguishes "server unavailable" (which the user
// sees inline) from everything else (which unwinds the optimistic append).
func (o *Orchestrator) handleSendFailure(userMsg Message, err error) (Message, error) {
	if isServerUnavailable(err) {
		placeholder := NewMessage(RoleAssistant,
			"Der CompanyGPT-Server ist gerade nicht erreichbar. Bitte versuchen Sie es in einem Moment erneut.")
		placeholder.IsError = true
		placeholder.ErrorType = KindServerUnavailable
		if appendErr := o.appendMessage(placeholder); appendErr != nil {
			o.logger.Error("failed to append error placeholder", "error", appendErr)
		}
		o.clearIntent()
		o.bus.Publish(events.SystemError, events.ErrorPayload{Kind: string(KindServerUnavailable), Message: err.Error()})
		return placeholder, nil
	}

	o.removeMessage(userMsg.ID)
	o.clearIntent()
	return Message{}, fmt.Errorf("chat request failed: %w", err)
}

// conversationBody builds the request body from the latest conversation,
// excluding process records.
func (o *Orchestrator) conversationBody() map[string]any {
	return o.requestBody(payloadMessages(o.Messages()), o.selectedMode(), o.selectedCollections())
}

// requestBody assembles the chat endpoint payload.
func (o *Orchestrator) requestBody(messages []wireMessage, mode string, collections []string) map[string]any {
	return map[string]any{
		"id":                      o.SessionID(),
		"folderId":                o.folderID,
		"roleId":                  o.roleID,
		"model":                   o.cfg.Model,
		"messages":                messages,
		"selectedDataCollections": collections,
		"selectedMode":            mode,
		"temperature":             o.cfg.Temperature,
	}
}

func (o *Orchestrator) selectedMode() string {
	if _, ok := o.SelectedFolder(); ok {
		return "QA"
	}
	return "BASIC"
}

func (o *Orchestrator) selectedCollections() []string {
	if folder, ok := o.SelectedFolder(); ok {
		return []string{folder.ID}
	}
	return []string{}
}

// post sends one chat request and returns the assistant text.
func (o *Orchestrator) post(ctx context.Context, body map[string]any) (string, error) {
	resp := o.broker.Request(ctx, httpx.Request{
		URL:    o.chatURL(o.tenant),
		Method: http.MethodPost,
		Body:   body,
	})
	if !resp.OK {
		return "", &httpx.StatusError{Status: resp.Status, Body: resp.Err}
	}
	return replyText(resp.Data), nil
}

// replyText reads the assistant text out of a chat response: a JSON object
// with content or message, else the raw body.
func replyText(data any) string {
	if m, ok := data.(map[string]any); ok {
		if s, ok := m["content"].(string); ok {
			return s
		}
		if s, ok := m["message"].(string); ok {
			return s
		}
	}
	if s, ok := data.(string); ok {
		return s
	}
	return ""
}

// appendMessage re-reads the conversation from the store before appending,
// so appends interleaved with HTTP awaits keep caller order.
func (o *Orchestrator) appendMessage(msg Message) error {
	current := o.Messages()
	next := make([]Message, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, msg)
	return o.store.Set(PathMessages, next)
}

func (o *Orchestrator) removeMessage(id string) {
	current := o.Messages()
	next := make([]Message, 0, len(current))
	for _, m := range current {
		if m.ID != id {
			next = append(next, m)
		}
	}
	if err := o.store.Set(PathMessages, next); err != nil {
		o.logger.Error("failed to remove message", "id", id, "error", err)
	}
}

func (o *Orchestrator) clearIntent() {
	if err := o.store.Set(PathCurrentIntent, nil); err != nil {
		o.logger.Error("failed to clear intent", "error", err)
	}
}

// ClearConversation drops all messages and the active intent.
func (o *Orchestrator) ClearConversation() error {
	return o.store.Batch(map[string]any{
		PathMessages:      []Message{},
		PathCurrentIntent: nil,
	})
}

// isServerUnavailable recognizes the failures that surface inline: 5xx,
// 403 and transport errors.
func isServerUnavailable(err error) bool {
	var statusErr *httpx.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status >= 500 || statusErr.Status == http.StatusForbidden || statusErr.Status == 0
	}
	return true
}

// composeContent prepends the site-labeled context sections to the user
// text.
func composeContent(text string, pctx *extract.Context) string {
	if pctx == nil || (pctx.Text == "" && pctx.Selection == "") {
		return text
	}

	var b strings.Builder
	if pctx.Text != "" {
		fmt.Fprintf(&b, "%s\n%s\n\n", contextLabel(pctx), pctx.Text)
	}
	if pctx.Selection != "" {
		fmt.Fprintf(&b, "[Ausgewählter Text]\n%s\n\n", pctx.Selection)
	}
	fmt.Fprintf(&b, "[Benutzer-Anfrage]\n%s", text)
	return b.String()
}

func contextLabel(pctx *extract.Context) string {
	switch {
	case pctx.IsEmail():
		return "[Email-Kontext]"
	case pctx.Site == extract.SiteGoogleDocs:
		return "[Dokument-Kontext]"
	case pctx.Site == extract.SiteSharePoint:
		return "[SharePoint-Kontext]"
	default:
		return "[Webseiten-Kontext]"
	}
}
