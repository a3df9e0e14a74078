package events

import (
	"context"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	defer bus.Shutdown()

	all := bus.Subscribe(ctx)
	authOnly := bus.Subscribe(ctx, TypeFilter(AuthStateChanged))

	bus.Publish(ContentUpdated, ContentUpdatedPayload{Site: "gmail", URL: "https://mail.google.com"})
	bus.Publish(AuthStateChanged, AuthChangePayload{Authenticated: true, Tenant: "acme"})

	e := recv(t, all)
	if e.Type != ContentUpdated {
		t.Errorf("expected content.updated first, got %s", e.Type)
	}
	e = recv(t, all)
	if e.Type != AuthStateChanged {
		t.Errorf("expected auth.state.changed, got %s", e.Type)
	}

	e = recv(t, authOnly)
	if e.Type != AuthStateChanged {
		t.Errorf("filtered subscriber got %s", e.Type)
	}
	payload, ok := e.Payload.(AuthChangePayload)
	if !ok || payload.Tenant != "acme" {
		t.Errorf("unexpected payload: %#v", e.Payload)
	}
}

func TestSessionFilter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	defer bus.Shutdown()

	mine := bus.Subscribe(ctx, TypeFilter(ChatStepStarted), SessionFilter("s1"))

	bus.Publish(ChatStepStarted, StepPayload{Index: 1, Total: 3}, WithSession("other"))
	bus.Publish(ChatStepStarted, StepPayload{Index: 2, Total: 3}, WithSession("s1"))

	e := recv(t, mine)
	if e.SessionID != "s1" {
		t.Errorf("expected session s1, got %q", e.SessionID)
	}
	if p := e.Payload.(StepPayload); p.Index != 2 {
		t.Errorf("expected the s1-scoped step, got index %d", p.Index)
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx)
	cancel()

	select {
	case _, open := <-ch:
		if open {
			t.Error("expected closed channel after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
