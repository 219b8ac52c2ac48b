// Package clipboard copies revealed secrets to the system clipboard and
// clears them again after a delay.
package clipboard

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// CopyWithTimeout copies text to the clipboard and returns a channel that is
// closed once the clipboard has been cleared. It clears after timeout or when
// ctx is done, whichever comes first, and only if the clipboard still holds
// text.
func CopyWithTimeout(ctx context.Context, text string, timeout time.Duration) (<-chan struct{}, error) {
	if err := clipboard.WriteAll(text); err != nil {
		return nil, fmt.Errorf("failed to copy to clipboard: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
		}

		current, err := clipboard.ReadAll()
		if err == nil && current == text {
			_ = clipboard.WriteAll("")
		}
	}()

	return done, nil
}

// IsAvailable returns true if clipboard functionality is available
func IsAvailable() bool {
	if clipboard.Unsupported {
		return false
	}
	_, err := clipboard.ReadAll()
	return err == nil
}

// Clear clears the clipboard
func Clear() error {
	return clipboard.WriteAll("")
}
