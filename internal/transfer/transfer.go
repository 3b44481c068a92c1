// Package transfer copies one video from the message source into object
// storage.
//
// Bytes are staged through a local temp file because the object store
// needs a seekable body with a known length. The temp file is removed on
// every exit path.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/channel-video-relay/internal/media"
	"github.com/fpang/channel-video-relay/internal/s3util"
)

// Stage names where a transfer failed.
const (
	StageStage    = "stage"
	StageDownload = "download"
	StageUpload   = "upload"
)

// Downloader retrieves media bytes from the message source.
type Downloader interface {
	Download(ctx context.Context, messageID int64, documentID string, w io.Writer) (int64, error)
}

// ObjectStore writes one object and reports where it landed.
type ObjectStore interface {
	Upload(ctx context.Context, obj s3util.Object) (media.TransferResult, error)
}

// TransferError is returned for any failed transfer. It is isolated to one
// item and never aborts a run.
type TransferError struct {
	ItemID   string
	FileName string
	Stage    string
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s (%s) failed at %s: %v", e.ItemID, e.FileName, e.Stage, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Transferer moves items of one channel into one ObjectStore.
type Transferer struct {
	source  Downloader
	store   ObjectStore
	channel string
	tempDir string
	now     func() time.Time
}

// New creates a Transferer. tempDir may be empty to use os.TempDir().
func New(source Downloader, store ObjectStore, channel, tempDir string) *Transferer {
	return &Transferer{
		source:  source,
		store:   store,
		channel: channel,
		tempDir: tempDir,
		now:     time.Now,
	}
}

// Transfer downloads item and writes it to the object store under
// ObjectKey. Exactly one object is written per successful call.
func (t *Transferer) Transfer(ctx context.Context, item media.VideoItem) (media.TransferResult, error) {
	logger := log.With().
		Str("itemId", item.ID).
		Str("file", item.FileName).
		Int64("messageId", item.MessageID).
		Logger()

	fail := func(stage string, err error) (media.TransferResult, error) {
		return media.TransferResult{}, &TransferError{ItemID: item.ID, FileName: item.FileName, Stage: stage, Err: err}
	}

	tmp, cleanup, err := t.stageFile(item, logger)
	if err != nil {
		return fail(StageStage, err)
	}
	defer cleanup()

	evt := logger.Info().Str("size", media.FormatFileSize(item.FileSize))
	if item.Duration != nil {
		evt = evt.Str("duration", media.FormatDurationShort(time.Duration(*item.Duration)*time.Second))
	}
	evt.Msg("Downloading video")
	n, err := t.source.Download(ctx, item.MessageID, item.ID, tmp)
	if err != nil {
		return fail(StageDownload, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fail(StageStage, fmt.Errorf("rewind temp file: %w", err))
	}

	key := ObjectKey(t.channel, item.FileName, item.Timestamp)
	result, err := t.store.Upload(ctx, s3util.Object{
		Key:         key,
		Body:        tmp,
		Size:        n,
		ContentType: media.ContentTypeFor(item.FileName),
		Metadata: map[string]string{
			"original-file-name": item.FileName,
			"channel-name":       t.channel,
			"upload-timestamp":   t.now().UTC().Format(time.RFC3339),
			"source-timestamp":   item.Timestamp.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fail(StageUpload, err)
	}

	logger.Info().
		Str("key", result.Key).
		Str("size", media.FormatFileSize(uint64(n))).
		Msg("Video transferred")
	return result, nil
}

// stageFile creates the temp file and a cleanup func that closes and
// removes it. A failed removal is logged and otherwise ignored.
func (t *Transferer) stageFile(item media.VideoItem, logger zerolog.Logger) (*os.File, func(), error) {
	f, err := os.CreateTemp(t.tempDir, "relay-*"+filepath.Ext(SanitizeFileName(item.FileName)))
	if err != nil {
		return nil, nil, fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		f.Close()
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Str("path", f.Name()).Msg("Failed to remove temp file")
			return
		}
		logger.Debug().Str("path", f.Name()).Msg("Cleaned up temp file")
	}
	return f, cleanup, nil
}
