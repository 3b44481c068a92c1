package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/channel-video-relay/internal/config"
	"github.com/fpang/channel-video-relay/internal/logging"
)

// Set at build time with -ldflags "-X main.commitHash=...".
var commitHash string

// CLI flags
var (
	configFlag   string
	logLevelFlag string
)

// rootCmd is the main Cobra command for the relay CLI.
var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay new channel videos to object storage and a webhook",
	Long: `Relay scans a channel for video posts newer than the saved cursor,
copies each video into an S3-compatible bucket and announces it to a webhook.

Examples:
  relay run --config relay.toml
  relay cursor get
  relay cursor set 4200 --yes
  relay notify videos/Funny/1700000000000_clip.mp4`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to the TOML config file (default: defaults plus RELAY_* environment)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level override: debug, info, warn, error")

	rootCmd.AddCommand(runCmd, cursorCmd, notifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config and initializes logging from it.
func loadConfig() *config.Config {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		logging.Init("info", true)
		log.Fatal().Err(err).Str("path", configFlag).Msg("Failed to load config")
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	logging.Init(cfg.Logging.Level, cfg.Logging.Console)
	return cfg
}
