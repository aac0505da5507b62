package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"brain/internal/brainerr"
)

// withRetry retries fn with exponential backoff when the store reports
// busy/locked, up to a short total budget, per spec §4.1/§7's transient
// storage failure semantics. Any other error (or a transient error once the
// budget is exhausted) is returned as-is/wrapped.
func (m *Memory) withRetry(ctx context.Context, fn func() error) error {
	const budget = 400 * time.Millisecond
	backoff := 10 * time.Millisecond
	deadline := time.Now().Add(budget)

	var lastErr error
	for {
		lastErr = fn()
		if lastErr == nil || !isBusy(lastErr) {
			return lastErr
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %v", brainerr.ErrTransient, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, brainerr.ErrTransient) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
