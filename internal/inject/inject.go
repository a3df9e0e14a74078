// Package inject places a generated reply into the compose editor of the
// active mail tab, falling back to the clipboard whenever the page cannot
// be driven.
package inject

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/charmbracelet/log"

	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/chat"
	"github.com/companygpt/sidekick/internal/config"
)

// Record reports how a reply was delivered.
type Record struct {
	OK      bool   `json:"ok"`
	Method  string `json:"method"` // "editor" or "clipboard"
	Message string `json:"message,omitempty"`
}

const (
	MethodEditor    = "editor"
	MethodClipboard = "clipboard"
)

// Injector drives the provider-specific insertion flows.
type Injector struct {
	cfg    *config.Config
	tabs   browser.Tabs
	page   browser.Scripting
	clip   browser.Clipboard
	logger *log.Logger

	// Editor settle times; the compose pane renders asynchronously after
	// the reply click.
	agentWait   time.Duration
	gmailWait   time.Duration
	outlookWait time.Duration
}

func New(cfg *config.Config, tabs browser.Tabs, page browser.Scripting, clip browser.Clipboard, logger *log.Logger) *Injector {
	if logger == nil {
		logger = log.Default()
	}
	return &Injector{
		cfg:         cfg,
		tabs:        tabs,
		page:        page,
		clip:        clip,
		logger:      logger.With("component", "inject"),
		agentWait:   500 * time.Millisecond,
		gmailWait:   time.Second,
		outlookWait: 2 * time.Second,
	}
}

// Insert writes reply into the active tab's compose editor. A non-mail tab
// or any page failure delivers via clipboard instead; the record says
// which path was taken.
func (i *Injector) Insert(ctx context.Context, reply string) (Record, error) {
	tab, err := i.tabs.Active(ctx)
	if err != nil {
		return i.clipboardFallback(ctx, reply, fmt.Sprintf("no active tab: %v", err))
	}

	provider := providerFor(tab.URL)
	if provider == "" {
		return i.clipboardFallback(ctx, reply, "")
	}

	if err := i.ensureAgent(ctx, tab.ID); err != nil {
		return i.clipboardFallback(ctx, reply, err.Error())
	}

	if err := i.page.ClickReply(ctx, tab.ID, provider); err != nil {
		return i.clipboardFallback(ctx, reply, fmt.Sprintf("reply button: %v", err))
	}

	var target browser.ComposeTarget
	var html string
	switch provider {
	case "outlook":
		if err := sleep(ctx, i.outlookWait); err != nil {
			return Record{}, err
		}
		target = browser.ComposeTarget{Provider: "outlook", Role: "textbox"}
		html = formatOutlook(reply, i.cfg.ComposeFontStack)
	case "gmail":
		if err := sleep(ctx, i.gmailWait); err != nil {
			return Record{}, err
		}
		target = browser.ComposeTarget{Provider: "gmail", Role: "textbox"}
		html = formatGmail(reply)
	}

	if err := i.page.WriteCompose(ctx, tab.ID, target, html); err != nil {
		return i.clipboardFallback(ctx, reply, fmt.Sprintf("compose write: %v", err))
	}
	if err := i.page.DispatchInput(ctx, tab.ID); err != nil {
		return i.clipboardFallback(ctx, reply, fmt.Sprintf("input dispatch: %v", err))
	}

	i.logger.Info("reply inserted", "provider", provider, "tab", tab.ID)
	return Record{OK: true, Method: MethodEditor}, nil
}

// ensureAgent pings the tab's content agent, injecting it and retrying
// once when absent.
func (i *Injector) ensureAgent(ctx context.Context, tabID int) error {
	present, err := i.page.HasAgent(ctx, tabID)
	if err == nil && present {
		return nil
	}
	if err := i.page.InjectAgent(ctx, tabID); err != nil {
		return fmt.Errorf("agent injection: %w", err)
	}
	if err := sleep(ctx, i.agentWait); err != nil {
		return err
	}
	present, err = i.page.HasAgent(ctx, tabID)
	if err != nil {
		return fmt.Errorf("agent ping: %w", err)
	}
	if !present {
		return fmt.Errorf("content agent did not come up")
	}
	return nil
}

// clipboardFallback copies the reply and reports the clipboard method; the
// cause, when given, rides along for the notification. The fallback error,
// when even the clipboard fails, wraps as reply-inject-failed.
func (i *Injector) clipboardFallback(ctx context.Context, reply, cause string) (Record, error) {
	if err := i.clip.Write(ctx, reply); err != nil {
		return Record{OK: false, Method: MethodClipboard, Message: cause},
			chat.NewError(chat.KindReplyInjectFailed, "clipboard write failed", err)
	}
	if cause != "" {
		i.logger.Warn("falling back to clipboard", "cause", cause)
	}
	return Record{OK: true, Method: MethodClipboard, Message: cause}, nil
}

// providerFor recognizes the mail hosts.
func providerFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	switch u.Hostname() {
	case "mail.google.com":
		return "gmail"
	case "outlook.office.com", "outlook.live.com", "outlook.office365.com":
		return "outlook"
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
