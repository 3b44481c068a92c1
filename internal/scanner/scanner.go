// Package scanner walks the channel feed forward from a cursor and yields
// the video items it finds.
//
// Pages are requested strictly sequentially with a fixed delay between
// them to stay inside the source's API quota. The walk stops on an empty
// page, on a page that does not move past the current position, or on a
// partial page.
package scanner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/channel-video-relay/internal/backoff"
	"github.com/fpang/channel-video-relay/internal/cursor"
	"github.com/fpang/channel-video-relay/internal/media"
	"github.com/fpang/channel-video-relay/internal/source"
)

const (
	// DefaultPageSize is the number of messages requested per page.
	DefaultPageSize = 100

	// DefaultPageDelay is the blocking wait between page requests. Removing
	// it needs a replacement quota strategy, not just the 429 backoff below.
	DefaultPageDelay = 1500 * time.Millisecond

	// DefaultRateLimitRetries is how often one page is retried after a 429.
	DefaultRateLimitRetries = 3
)

// Lister is the part of the message source the scanner needs.
type Lister interface {
	ListMessages(ctx context.Context, afterID int64, limit int) ([]source.Message, error)
}

// ScannedMessage is one message at or after the cursor with its video items.
// Videos is empty for messages without video media.
type ScannedMessage struct {
	ID     int64
	Date   time.Time
	Videos []media.VideoItem
}

// ScanError ends a scan. AfterID is the position the failed page was
// requested from, so everything up to it was already yielded.
type ScanError struct {
	AfterID int64
	Page    int
	Err     error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan page %d after message %d: %v", e.Page, e.AfterID, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Scanner paginates a Lister.
type Scanner struct {
	lister           Lister
	pageSize         int
	pageDelay        time.Duration
	rateLimitRetries int
	sleep            backoff.SleepFunc
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithPageDelay overrides DefaultPageDelay.
func WithPageDelay(d time.Duration) Option {
	return func(s *Scanner) { s.pageDelay = d }
}

// WithRateLimitRetries overrides DefaultRateLimitRetries.
func WithRateLimitRetries(n int) Option {
	return func(s *Scanner) { s.rateLimitRetries = n }
}

// WithSleep replaces the wait used for page delays and 429 backoff.
func WithSleep(fn backoff.SleepFunc) Option {
	return func(s *Scanner) { s.sleep = fn }
}

// New creates a Scanner over l.
func New(l Lister, opts ...Option) *Scanner {
	s := &Scanner{
		lister:           l,
		pageSize:         DefaultPageSize,
		pageDelay:        DefaultPageDelay,
		rateLimitRetries: DefaultRateLimitRetries,
		sleep:            backoff.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan yields every video item in messages newer than from. Each item
// carries the id of its message. A failed page is yielded once as a
// *ScanError and ends the sequence. The sequence can be restarted from any
// cursor value.
func (s *Scanner) Scan(ctx context.Context, from cursor.Cursor) iter.Seq2[media.VideoItem, error] {
	return func(yield func(media.VideoItem, error) bool) {
		for msg, err := range s.Messages(ctx, from) {
			if err != nil {
				yield(media.VideoItem{}, err)
				return
			}
			for _, item := range msg.Videos {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Messages yields every message newer than from in ascending id order,
// including messages without video, so callers can advance a cursor past
// them.
func (s *Scanner) Messages(ctx context.Context, from cursor.Cursor) iter.Seq2[ScannedMessage, error] {
	return func(yield func(ScannedMessage, error) bool) {
		afterID := from.LastMessageID
		for page := 1; ; page++ {
			msgs, err := s.fetch(ctx, afterID)
			if err != nil {
				yield(ScannedMessage{}, &ScanError{AfterID: afterID, Page: page, Err: err})
				return
			}
			log.Debug().Int("page", page).Int64("afterId", afterID).Int("messages", len(msgs)).Msg("Fetched message page")
			if len(msgs) == 0 {
				return
			}

			slices.SortFunc(msgs, func(a, b source.Message) int { return cmp.Compare(a.ID, b.ID) })

			newest := afterID
			for _, m := range msgs {
				// The gateway may echo the boundary message.
				if m.ID <= afterID {
					continue
				}
				newest = m.ID
				if !yield(toScanned(m), nil) {
					return
				}
			}

			if newest == afterID {
				return
			}
			afterID = newest

			if len(msgs) < s.pageSize {
				return
			}

			if err := s.sleep(ctx, s.pageDelay); err != nil {
				yield(ScannedMessage{}, &ScanError{AfterID: afterID, Page: page + 1, Err: err})
				return
			}
		}
	}
}

// fetch requests one page, backing off and retrying on 429 responses.
func (s *Scanner) fetch(ctx context.Context, afterID int64) ([]source.Message, error) {
	for attempt := 0; ; attempt++ {
		msgs, err := s.lister.ListMessages(ctx, afterID, s.pageSize)
		var rl *source.RateLimitError
		if err == nil || !errors.As(err, &rl) || attempt >= s.rateLimitRetries {
			return msgs, err
		}

		wait := rl.RetryAfter
		if wait <= 0 {
			wait = backoff.Exponential(2*s.pageDelay, attempt)
		}
		log.Warn().
			Int64("afterId", afterID).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("Message source rate limited, backing off")
		if err := s.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func toScanned(m source.Message) ScannedMessage {
	sm := ScannedMessage{ID: m.ID, Date: m.Date}
	if m.Attachment.Kind == source.AttachmentVideo && m.Attachment.Video != nil {
		v := m.Attachment.Video
		sm.Videos = []media.VideoItem{{
			ID:        v.DocumentID,
			FileName:  v.FileName,
			FileSize:  v.Size,
			Duration:  v.Duration,
			Timestamp: m.Date,
			MessageID: m.ID,
			MIMEType:  v.MIMEType,
		}}
	}
	return sm
}
