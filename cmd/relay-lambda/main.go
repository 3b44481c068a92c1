// Command relay-lambda runs one relay pass per EventBridge schedule event.
//
// Configuration comes from the file named by RELAY_CONFIG (optional) plus
// RELAY_* environment variables; secrets are usually SSM parameter names.
// The schedule rule must not fire faster than a run takes, since runs are not
// mutually excluded.
package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/channel-video-relay/internal/config"
	"github.com/fpang/channel-video-relay/internal/lambdaboot"
	"github.com/fpang/channel-video-relay/internal/logging"
	"github.com/fpang/channel-video-relay/internal/pipeline"
)

// Set at build time with -ldflags "-X main.commitHash=...".
var commitHash string

var relay *lambdaboot.Runtime

// setup runs once per cold start. Configuration errors are fatal so the
// invocation fails visibly instead of silently skipping runs.
func setup() {
	initStart := time.Now()

	cfg, err := config.LoadConfig(os.Getenv("RELAY_CONFIG"))
	if err != nil {
		logging.Init("info", false)
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(cfg.Logging.Level, false)

	// Lambda always reports run metrics; RELAY_METRICS_ENABLED=false opts out.
	if os.Getenv("RELAY_METRICS_ENABLED") == "" {
		cfg.Metrics.Enabled = true
	}

	relay, err = lambdaboot.Build(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize relay")
	}

	lambdaboot.StartupLog("relay-lambda", initStart, cfg).CommitHash(commitHash).Log()
}

// scheduleResponse is returned to the invoker for visibility in the console.
type scheduleResponse struct {
	RunID       string `json:"runId"`
	Found       int    `json:"found"`
	Transferred int    `json:"transferred"`
	Notified    int    `json:"notified"`
	Failed      int    `json:"failed"`
	EndCursor   int64  `json:"endCursor"`
}

func handler(ctx context.Context, event events.CloudWatchEvent) (scheduleResponse, error) {
	log.Info().
		Str("eventId", event.ID).
		Str("source", event.Source).
		Time("scheduledAt", event.Time).
		Msg("Scheduled run triggered")
	return handle(ctx, relay.Orchestrator)
}

type runner interface {
	Run(ctx context.Context) (pipeline.RunStatistics, error)
}

func handle(ctx context.Context, r runner) (scheduleResponse, error) {
	stats, err := r.Run(ctx)
	resp := scheduleResponse{
		RunID:       stats.RunID,
		Found:       stats.Found,
		Transferred: stats.Transferred,
		Notified:    stats.Notified,
		Failed:      stats.Failed,
		EndCursor:   stats.EndCursor.LastMessageID,
	}
	return resp, err
}

func main() {
	setup()
	lambda.Start(handler)
}
