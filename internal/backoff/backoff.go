// Package backoff holds the context-aware wait and exponential delay shared
// by the scanner's throttle and the notifier's retry loop.
package backoff

import (
	"context"
	"time"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Exponential returns base * 2^retry. retry 0 is the first retry.
func Exponential(base time.Duration, retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	return base << retry
}
