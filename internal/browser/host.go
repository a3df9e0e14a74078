package browser

import (
	"context"
	"errors"
)

// ErrScriptingUnavailable is returned when no page scripting bridge is
// attached. Headless runs serve the message API without one; an embedding
// host supplies the real implementation.
var ErrScriptingUnavailable = errors.New("page scripting unavailable")

// NoScripting is the Scripting implementation for headless runs.
type NoScripting struct{}

func (NoScripting) SnapshotDOM(context.Context, int) (string, error) {
	return "", ErrScriptingUnavailable
}

func (NoScripting) ClickReply(context.Context, int, string) error {
	return ErrScriptingUnavailable
}

func (NoScripting) WriteCompose(context.Context, int, ComposeTarget, string) error {
	return ErrScriptingUnavailable
}

func (NoScripting) DispatchInput(context.Context, int) error {
	return ErrScriptingUnavailable
}

func (NoScripting) HasAgent(context.Context, int) (bool, error) {
	return false, nil
}

func (NoScripting) InjectAgent(context.Context, int) error {
	return ErrScriptingUnavailable
}
