package main

import (
	"context"
	"errors"
	"testing"

	"github.com/fpang/channel-video-relay/internal/cursor"
	"github.com/fpang/channel-video-relay/internal/pipeline"
)

type stubRunner struct {
	stats pipeline.RunStatistics
	err   error
}

func (s stubRunner) Run(ctx context.Context) (pipeline.RunStatistics, error) {
	return s.stats, s.err
}

func TestHandle(t *testing.T) {
	stats := pipeline.RunStatistics{RunID: "run-1", Found: 3, Transferred: 3, Notified: 2, Failed: 1, EndCursor: cursor.Cursor{LastMessageID: 12}}

	resp, err := handle(context.Background(), stubRunner{stats: stats})
	if err != nil {
		t.Fatal(err)
	}
	want := scheduleResponse{RunID: "run-1", Found: 3, Transferred: 3, Notified: 2, Failed: 1, EndCursor: 12}
	if resp != want {
		t.Errorf("expected %+v, got %+v", want, resp)
	}

	persist := &cursor.PersistError{Backend: "dynamodb", Cursor: cursor.Cursor{LastMessageID: 12}, Err: errors.New("throttled")}
	resp, err = handle(context.Background(), stubRunner{stats: stats, err: persist})
	var pe *cursor.PersistError
	if !errors.As(err, &pe) {
		t.Errorf("expected run error to reach the invoker, got %v", err)
	}
	if resp.RunID != "run-1" {
		t.Errorf("statistics must be returned with the error, got %+v", resp)
	}
}
