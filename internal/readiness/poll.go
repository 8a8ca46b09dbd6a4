// Package readiness waits for a condition, typically the appearance of a
// sidecar's unix socket, with a bounded deadline.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrTimeout is returned when the condition did not become true in time.
var ErrTimeout = errors.New("readiness: timed out")

// Condition reports whether the awaited state has been reached.
type Condition func() bool

// Poll samples cond immediately and then every step until it returns true,
// the elapsed time exceeds timeout, or ctx is done. It sleeps between
// samples and never spins.
func Poll(ctx context.Context, cond Condition, step, timeout time.Duration) error {
	if step <= 0 {
		return fmt.Errorf("readiness: step must be positive, got %s", step)
	}

	start := time.Now()
	timer := time.NewTimer(step)
	defer timer.Stop()

	for {
		if cond() {
			return nil
		}

		if elapsed := time.Since(start); elapsed > timeout {
			return fmt.Errorf("%w after %s", ErrTimeout, elapsed.Round(time.Millisecond))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			timer.Reset(step)
		}
	}
}

// FileExists returns a Condition that holds once path exists.
func FileExists(path string) Condition {
	return func() bool {
		_, err := os.Stat(path)
		return err == nil
	}
}
