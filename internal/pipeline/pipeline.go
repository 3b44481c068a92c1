// Package pipeline drives one relay run: load the cursor, walk new messages,
// transfer and announce each video, then persist the cursor.
//
// Items are processed strictly one at a time in message order. The cursor
// only moves past a message once all of its items were attempted, and it is
// saved once at the end of the run, also when the run fails or panics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/channel-video-relay/internal/cursor"
	"github.com/fpang/channel-video-relay/internal/media"
	"github.com/fpang/channel-video-relay/internal/metrics"
	"github.com/fpang/channel-video-relay/internal/notify"
	"github.com/fpang/channel-video-relay/internal/scanner"
	"github.com/fpang/channel-video-relay/internal/source"
)

// DefaultSaveTimeout bounds the final cursor save.
const DefaultSaveTimeout = 10 * time.Second

// MessageScanner yields messages newer than a cursor in ascending id order.
type MessageScanner interface {
	Messages(ctx context.Context, from cursor.Cursor) iter.Seq2[scanner.ScannedMessage, error]
}

// Transferer copies one item into object storage.
type Transferer interface {
	Transfer(ctx context.Context, item media.VideoItem) (media.TransferResult, error)
}

// Notifier announces one transferred item.
type Notifier interface {
	Notify(ctx context.Context, p notify.Payload) error
}

// Orchestrator runs the pipeline. Runs must not overlap; the scheduler
// guarantees that.
type Orchestrator struct {
	store        cursor.Store
	scanner      MessageScanner
	transfer     Transferer
	notifier     Notifier
	channelLabel string

	channel     string
	policy      FailurePolicy
	saveTimeout time.Duration
	newRecorder func() *metrics.Recorder
	newRunID    func() string
	now         func() time.Time

	state atomic.Int32
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFailurePolicy overrides PolicySkip.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithChannel sets the channel name used for log fields and the metrics
// dimension.
func WithChannel(name string) Option {
	return func(o *Orchestrator) { o.channel = name }
}

// WithSaveTimeout overrides DefaultSaveTimeout.
func WithSaveTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.saveTimeout = d
		}
	}
}

// WithMetrics enables one EMF line per run. fn is called once per run.
func WithMetrics(fn func() *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.newRecorder = fn }
}

// WithRunID replaces the uuid run id generator.
func WithRunID(fn func() string) Option {
	return func(o *Orchestrator) { o.newRunID = fn }
}

// New creates an Orchestrator. channelLabel is the value sent as the
// payload's channel field.
func New(store cursor.Store, sc MessageScanner, tr Transferer, n Notifier, channelLabel string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		scanner:      sc,
		transfer:     tr,
		notifier:     n,
		channelLabel: channelLabel,
		policy:       PolicySkip,
		saveTimeout:  DefaultSaveTimeout,
		newRunID:     uuid.NewString,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State reports the current phase. It is safe to call from any goroutine.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

// Run executes one pass. The returned statistics are always populated.
// Per-item failures only count in Failed; the error is non-nil when the
// cursor could not be loaded or saved, the scan broke off, the context was
// cancelled, or the run panicked.
func (o *Orchestrator) Run(ctx context.Context) (stats RunStatistics, err error) {
	start := o.now()
	stats.RunID = o.newRunID()
	logger := log.With().Str("runId", stats.RunID).Str("channel", o.channel).Logger()

	var (
		loaded  cursor.Cursor
		current cursor.Cursor
		canSave bool
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Run panicked")
			err = errors.Join(err, fmt.Errorf("run panicked: %v", r))
		}

		o.setState(StateFinalizing)
		if canSave && current.LastMessageID > loaded.LastMessageID {
			if serr := o.save(ctx, current); serr != nil {
				logger.Error().Err(serr).Int64("cursor", current.LastMessageID).Msg("Failed to persist cursor")
				err = errors.Join(err, serr)
			} else {
				logger.Debug().Int64("cursor", current.LastMessageID).Msg("Cursor persisted")
			}
		}

		stats.EndCursor = current
		stats.Duration = o.now().Sub(start)
		o.summarize(logger, stats, err)
		o.setState(StateIdle)
	}()

	o.setState(StateScanning)
	loaded, err = o.store.Load(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load cursor")
		return stats, fmt.Errorf("load cursor: %w", err)
	}
	current = loaded
	canSave = true
	stats.StartCursor = loaded
	logger.Info().Int64("cursor", loaded.LastMessageID).Str("policy", string(o.policy)).Msg("Run started")

	held := false
	for msg, scanErr := range o.scanner.Messages(ctx, loaded) {
		if scanErr != nil {
			if ctx.Err() != nil {
				return stats, fmt.Errorf("run cancelled: %w", ctx.Err())
			}
			logger.Error().Err(scanErr).Int64("cursor", current.LastMessageID).Msg("Scan failed, ending run")
			if !errors.Is(scanErr, source.ErrSourceUnavailable) {
				scanErr = fmt.Errorf("%w: %w", source.ErrSourceUnavailable, scanErr)
			}
			return stats, scanErr
		}

		failed, interrupted := o.processMessage(ctx, logger, msg, &stats)
		if interrupted {
			logger.Warn().Int64("messageId", msg.ID).Msg("Run cancelled while processing message")
			return stats, fmt.Errorf("run cancelled: %w", ctx.Err())
		}

		if failed && o.policy == PolicyHold && !held {
			held = true
			logger.Warn().
				Int64("messageId", msg.ID).
				Int64("cursor", current.LastMessageID).
				Msg("Holding cursor before failed message")
		}
		if !held && msg.ID > current.LastMessageID {
			current = cursor.Cursor{LastMessageID: msg.ID}
		}

		if ctx.Err() != nil {
			return stats, fmt.Errorf("run cancelled: %w", ctx.Err())
		}
	}
	return stats, nil
}

// processMessage handles every item of msg in order. failed reports whether
// any item failed; interrupted reports that the context ended before all
// items were attempted, in which case the message must not be finalized.
func (o *Orchestrator) processMessage(ctx context.Context, logger zerolog.Logger, msg scanner.ScannedMessage, stats *RunStatistics) (failed, interrupted bool) {
	if len(msg.Videos) == 0 {
		logger.Debug().Int64("messageId", msg.ID).Msg("No video in message")
		return false, false
	}

	o.setState(StateProcessingItem)
	defer o.setState(StateScanning)

	for _, item := range msg.Videos {
		if ctx.Err() != nil {
			return failed, true
		}
		stats.Found++
		if err := o.processItem(ctx, item, stats); err != nil {
			if ctx.Err() != nil {
				return failed, true
			}
			stats.Failed++
			failed = true
			logger.Error().
				Err(err).
				Str("itemId", item.ID).
				Str("file", item.FileName).
				Int64("messageId", item.MessageID).
				Msg("Item failed")
		}
	}
	return failed, false
}

func (o *Orchestrator) processItem(ctx context.Context, item media.VideoItem, stats *RunStatistics) error {
	res, err := o.transfer.Transfer(ctx, item)
	if err != nil {
		return err
	}
	stats.Transferred++

	if err := o.notifier.Notify(ctx, notify.NewPayload(item, res, o.channelLabel)); err != nil {
		return err
	}
	stats.Notified++
	return nil
}

// save persists c with a context that survives cancellation of the run.
func (o *Orchestrator) save(ctx context.Context, c cursor.Cursor) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.saveTimeout)
	defer cancel()

	err := o.store.Save(ctx, c)
	if err == nil {
		return nil
	}
	var pe *cursor.PersistError
	if errors.As(err, &pe) {
		return err
	}
	return &cursor.PersistError{Backend: fmt.Sprintf("%T", o.store), Cursor: c, Err: err}
}

func (o *Orchestrator) summarize(logger zerolog.Logger, stats RunStatistics, runErr error) {
	evt := logger.Info()
	if runErr != nil {
		evt = logger.Error().Err(runErr)
	}
	evt.Int("found", stats.Found).
		Int("transferred", stats.Transferred).
		Int("notified", stats.Notified).
		Int("failed", stats.Failed).
		Int64("startCursor", stats.StartCursor.LastMessageID).
		Int64("endCursor", stats.EndCursor.LastMessageID).
		Dur("duration", stats.Duration).
		Msg("Run complete")

	if o.newRecorder == nil {
		return
	}
	rec := o.newRecorder()
	if o.channel != "" {
		rec.Dimension("Channel", o.channel)
	}
	success := 1
	if runErr != nil {
		success = 0
	}
	rec.Count("VideosFound", stats.Found).
		Count("VideosTransferred", stats.Transferred).
		Count("VideosNotified", stats.Notified).
		Count("VideosFailed", stats.Failed).
		Count("RunSucceeded", success).
		Duration("RunDuration", stats.Duration).
		Property("runId", stats.RunID).
		Property("endCursor", stats.EndCursor.LastMessageID)
	if err := rec.Flush(); err != nil {
		logger.Warn().Err(err).Msg("Failed to emit run metrics")
	}
}
