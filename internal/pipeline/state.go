package pipeline

import (
	"fmt"
	"time"

	"github.com/fpang/channel-video-relay/internal/cursor"
)

// State is the orchestrator's position in a run.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateProcessingItem
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateProcessingItem:
		return "processing_item"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// FailurePolicy decides what a failed item does to the cursor.
type FailurePolicy string

const (
	// PolicySkip advances the cursor past a message even when one of its
	// items failed. The failed item is not retried by later runs.
	PolicySkip FailurePolicy = "skip"

	// PolicyHold freezes the cursor before the first message with a failed
	// item, so the next run retries it. Messages after it are still
	// processed in this run and may be delivered again.
	PolicyHold FailurePolicy = "hold"
)

// ParseFailurePolicy accepts "skip", "hold" or "" (skip).
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyHold:
		return PolicyHold, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want skip or hold)", s)
	}
}

// RunStatistics summarizes one run. It is logged and emitted as metrics,
// never persisted.
type RunStatistics struct {
	RunID       string
	Found       int
	Transferred int
	Notified    int
	Failed      int
	Duration    time.Duration
	StartCursor cursor.Cursor
	EndCursor   cursor.Cursor
}
