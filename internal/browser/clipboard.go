package browser

import (
	"context"
	"fmt"

	"github.com/atotto/clipboard"
)

// SystemClipboard writes through the OS clipboard.
type SystemClipboard struct{}

// Write copies text to the system clipboard.
func (SystemClipboard) Write(_ context.Context, text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard write failed: %w", err)
	}
	return nil
}
