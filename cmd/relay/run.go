package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/channel-video-relay/internal/cli"
	"github.com/fpang/channel-video-relay/internal/lambdaboot"
)

var skipAuthFlag bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one relay run",
	Long: `Run loads the cursor, relays every new video and saves the cursor.
Ctrl-C stops after the current item; the cursor is still saved for every
message that was fully handled.`,
	Args: cobra.NoArgs,
	RunE: runRelay,
}

func init() {
	runCmd.Flags().BoolVar(&skipAuthFlag, "skip-auth", false, "Skip the gateway credential check before scanning")
}

func runRelay(cmd *cobra.Command, args []string) error {
	initStart := time.Now()
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := lambdaboot.Build(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize relay")
		return err
	}
	defer rt.Close()

	lambdaboot.StartupLog("relay", initStart, cfg).CommitHash(commitHash).Log()

	if !skipAuthFlag {
		if err := rt.Source.Authenticate(ctx); err != nil {
			log.Error().Err(err).Msg("Message source rejected credentials")
			return fmt.Errorf("authenticate: %w", err)
		}
	}

	stats, err := rt.Orchestrator.Run(ctx)
	cli.PrintRunSummary(cmd.OutOrStdout(), stats, err)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("interrupted: %w", context.Cause(ctx))
	}
	return err
}
