package inject

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companygpt/sidekick/internal/browser"
	"github.com/companygpt/sidekick/internal/chat"
	"github.com/companygpt/sidekick/internal/config"
)

type fixture struct {
	inj  *Injector
	tabs *browser.MemoryTabs
	page *browser.FakePage
	clip *browser.MemoryClipboard
}

func newFixture(t *testing.T, tabURL string) *fixture {
	t.Helper()
	tabs := browser.NewMemoryTabs(browser.Tab{ID: 7, URL: tabURL})
	page := &browser.FakePage{AgentPresent: true}
	clip := &browser.MemoryClipboard{}

	inj := New(config.Default(), tabs, page, clip, log.New(io.Discard))
	inj.agentWait = time.Millisecond
	inj.gmailWait = time.Millisecond
	inj.outlookWait = time.Millisecond
	return &fixture{inj: inj, tabs: tabs, page: page, clip: clip}
}

func TestInsertOutlook(t *testing.T) {
	f := newFixture(t, "https://outlook.office.com/mail/inbox/id/42")

	rec, err := f.inj.Insert(context.Background(),
		"Guten Tag Frau Doe,\nvielen Dank für Ihre Anfrage.\n\nMit freundlichen Grüßen\nMax")
	require.NoError(t, err)
	assert.Equal(t, Record{OK: true, Method: MethodEditor}, rec)

	require.Equal(t, []string{"outlook"}, f.page.ReplyClicks)
	require.Len(t, f.page.ComposeWrites, 1)
	write := f.page.ComposeWrites[0]
	assert.Equal(t, "outlook", write.Target.Provider)

	// Two blank-line paragraphs become two styled divs with exactly one
	// empty-line div between them.
	assert.Equal(t, 3, strings.Count(write.HTML, "<div style="))
	assert.Equal(t, 1, strings.Count(write.HTML, "><br></div>"))
	assert.Contains(t, write.HTML, "Calibri")
	assert.Contains(t, write.HTML, "Guten Tag Frau Doe,<br>vielen Dank für Ihre Anfrage.")
	assert.Equal(t, 1, f.page.InputDispatches, "one dispatch covers input and change")
}

func TestInsertGmailPlainText(t *testing.T) {
	f := newFixture(t, "https://mail.google.com/mail/u/0/#inbox/t1")

	rec, err := f.inj.Insert(context.Background(), "Subject: Re: Anfrage\n\nHallo,\ndanke!\n\nViele Grüße")
	require.NoError(t, err)
	assert.Equal(t, MethodEditor, rec.Method)

	require.Len(t, f.page.ComposeWrites, 1)
	html := f.page.ComposeWrites[0].HTML
	assert.NotContains(t, html, "Subject:", "leading subject line is stripped")
	assert.True(t, strings.HasPrefix(html, "<div>Hallo,</div><div>danke!</div><div><br></div><div>Viele Grüße</div>"),
		"got %q", html)
	assert.Equal(t, 1, f.page.InputDispatches)
}

func TestInsertGmailHTMLReply(t *testing.T) {
	f := newFixture(t, "https://mail.google.com/mail/u/0/#inbox/t1")

	_, err := f.inj.Insert(context.Background(), "Hallo <b>Team</b>,\ndanke!")
	require.NoError(t, err)

	html := f.page.ComposeWrites[0].HTML
	assert.Equal(t, "<div>Hallo <b>Team</b>,<br>danke!</div>", html)
}

func TestInsertNonMailTabUsesClipboard(t *testing.T) {
	f := newFixture(t, "https://example.org/article")

	rec, err := f.inj.Insert(context.Background(), "die Antwort")
	require.NoError(t, err)
	assert.Equal(t, Record{OK: true, Method: MethodClipboard}, rec)

	text, ok := f.clip.Last()
	require.True(t, ok)
	assert.Equal(t, "die Antwort", text)
	assert.Empty(t, f.page.ComposeWrites)
}

func TestInsertInjectsMissingAgent(t *testing.T) {
	f := newFixture(t, "https://mail.google.com/mail/u/0/#inbox/t1")
	f.page.AgentPresent = false

	rec, err := f.inj.Insert(context.Background(), "Hallo")
	require.NoError(t, err)
	assert.Equal(t, MethodEditor, rec.Method)
	assert.True(t, f.page.AgentInjected, "a missing agent is injected and retried")
}

func TestInsertComposeFailureFallsBack(t *testing.T) {
	f := newFixture(t, "https://outlook.office.com/mail/inbox")
	f.page.FailCompose = true

	rec, err := f.inj.Insert(context.Background(), "Hallo")
	require.NoError(t, err)
	assert.Equal(t, MethodClipboard, rec.Method)
	assert.True(t, rec.OK)
	assert.Contains(t, rec.Message, "compose write")

	text, ok := f.clip.Last()
	require.True(t, ok)
	assert.Equal(t, "Hallo", text)
}

func TestInsertClipboardFailure(t *testing.T) {
	f := newFixture(t, "https://example.org/")
	f.clip.Err = assert.AnError

	rec, err := f.inj.Insert(context.Background(), "Hallo")
	require.Error(t, err)
	assert.Equal(t, chat.KindReplyInjectFailed, chat.KindOf(err))
	assert.False(t, rec.OK)
}

func TestStripSubject(t *testing.T) {
	assert.Equal(t, "Hallo", stripSubject("Subject: Re: Anfrage\nHallo"))
	assert.Equal(t, "Hallo", stripSubject(`"Hallo"`))
	assert.Equal(t, "Hallo", stripSubject(`"Subject: x`+"\n"+`Hallo"`))
	assert.Equal(t, "Hallo", stripSubject("Hallo"))
}
