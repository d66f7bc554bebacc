// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"time"
)

// RetryWithBackoff runs op up to maxAttempts times, doubling the pause
// between attempts starting from baseBackoff. Engine availability probes and
// artifact downloads pass through here; image builds never retry.
//
// op receives the zero-based attempt number and reports whether its error is
// transient. A nil error or retry=false ends the loop immediately; when the
// attempt budget runs out the last error is returned. Cancellation is
// checked before every pause.
func RetryWithBackoff(
	ctx context.Context,
	maxAttempts int,
	baseBackoff time.Duration,
	op func(attempt int) (retry bool, err error),
) error {
	backoff := baseBackoff
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("retry aborted: %w", err)
			}
			time.Sleep(backoff)
			backoff *= 2
		}

		retry, err := op(attempt)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}

	return lastErr
}
