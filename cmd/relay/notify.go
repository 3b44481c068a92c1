package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/channel-video-relay/internal/lambdaboot"
	"github.com/fpang/channel-video-relay/internal/media"
	"github.com/fpang/channel-video-relay/internal/notify"
	"github.com/fpang/channel-video-relay/internal/transfer"
)

var skipCheckFlag bool

var notifyCmd = &cobra.Command{
	Use:   "notify <object-key>...",
	Short: "Re-send webhooks for objects that are already stored",
	Long: `Notify rebuilds the webhook payload from each stored object key and
delivers all of them concurrently. Use it when the webhook was down during a
run: the videos were stored but never announced.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runNotify,
}

func init() {
	notifyCmd.Flags().BoolVar(&skipCheckFlag, "skip-check", false, "Do not verify that each object exists before notifying")
}

func runNotify(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	ctx := cmd.Context()

	rt, err := lambdaboot.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	payloads := make([]notify.Payload, 0, len(args))
	for _, key := range args {
		channel, ts, fileName, err := transfer.ParseObjectKey(key)
		if err != nil {
			return fmt.Errorf("parse object key %q: %w", key, err)
		}
		if channel != transfer.SanitizeFileName(cfg.Source.Channel) {
			log.Warn().Str("key", key).Str("channel", channel).Msg("Object belongs to a different channel")
		}
		if !skipCheckFlag {
			ok, err := rt.Uploader.Exists(ctx, key)
			if err != nil {
				return fmt.Errorf("check %s: %w", key, err)
			}
			if !ok {
				return fmt.Errorf("object %s does not exist in bucket %s", key, rt.Uploader.Bucket())
			}
		}

		item := media.VideoItem{FileName: fileName, Timestamp: ts}
		res := media.TransferResult{Key: key, URL: rt.Uploader.PublicURL(key), Bucket: rt.Uploader.Bucket()}
		payloads = append(payloads, notify.NewPayload(item, res, cfg.ChannelLabel()))
	}

	res, err := rt.Notifier.NotifyBatch(ctx, payloads)
	fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d of %d notifications\n", res.Succeeded, len(payloads))
	return err
}
