package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/channel-video-relay/internal/cli"
	"github.com/fpang/channel-video-relay/internal/config"
	"github.com/fpang/channel-video-relay/internal/cursor"
	"github.com/fpang/channel-video-relay/internal/lambdaboot"
)

var yesFlag bool

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Inspect or move the saved cursor",
}

var cursorGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the last fully processed message id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openCursorStore(cmd.Context(), loadConfig())
		if err != nil {
			return err
		}
		defer closeFn()

		c, err := store.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), c.LastMessageID)
		return nil
	},
}

var cursorSetCmd = &cobra.Command{
	Use:   "set <message-id>",
	Short: "Overwrite the cursor, e.g. to replay messages after an outage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id < 0 {
			return fmt.Errorf("message id must be a non-negative integer: %q", args[0])
		}

		store, closeFn, err := openCursorStore(cmd.Context(), loadConfig())
		if err != nil {
			return err
		}
		defer closeFn()

		prev, err := store.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		if !yesFlag {
			q := fmt.Sprintf("Move cursor from %d to %d?", prev.LastMessageID, id)
			if !cli.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), q) {
				log.Info().Msg("Cursor unchanged")
				return nil
			}
		}

		if err := store.Save(cmd.Context(), cursor.Cursor{LastMessageID: id}); err != nil {
			return err
		}
		log.Info().Int64("from", prev.LastMessageID).Int64("to", id).Msg("Cursor updated")
		return nil
	},
}

func init() {
	cursorSetCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Do not ask for confirmation")
	cursorCmd.AddCommand(cursorGetCmd, cursorSetCmd)
}

// openCursorStore only touches AWS for the dynamodb backend.
func openCursorStore(ctx context.Context, cfg *config.Config) (cursor.Store, func() error, error) {
	awsCfg := aws.Config{}
	if cfg.Cursor.Backend == config.BackendDynamo {
		var err error
		if awsCfg, err = lambdaboot.LoadAWSConfig(ctx, cfg.Storage.Region); err != nil {
			return nil, nil, err
		}
	}
	return lambdaboot.NewCursorStore(awsCfg, cfg.Cursor, cfg.Source.Channel)
}
