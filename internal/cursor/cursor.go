// Package cursor persists the relay's position in the message source.
//
// A Cursor is the id of the last message whose video items were fully
// handled. Every Store returns the zero cursor when no state exists yet, and
// every Save either fully replaces the stored value or leaves the previous
// one in place. A store must never surface a value ahead of real progress:
// re-processing is recoverable, skipped messages are not.
package cursor

import (
	"context"
	"fmt"
)

// Cursor is the last fully processed message id.
type Cursor struct {
	LastMessageID int64
}

// Store loads and saves the cursor.
// Load returns Cursor{} (not an error) when nothing has been saved yet.
type Store interface {
	Load(ctx context.Context) (Cursor, error)
	Save(ctx context.Context, c Cursor) error
}

// PersistError reports a failed Save. The run that produced it must be
// reported as failed because the next run may repeat or miss work.
type PersistError struct {
	Backend string
	Cursor  Cursor
	Err     error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist cursor %d to %s: %v", e.Cursor.LastMessageID, e.Backend, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
