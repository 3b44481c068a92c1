package lambdaboot

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/fpang/channel-video-relay/internal/config"
	"github.com/fpang/channel-video-relay/internal/cursor"
	"github.com/fpang/channel-video-relay/internal/metrics"
	"github.com/fpang/channel-video-relay/internal/notify"
	"github.com/fpang/channel-video-relay/internal/pipeline"
	"github.com/fpang/channel-video-relay/internal/s3util"
	"github.com/fpang/channel-video-relay/internal/scanner"
	"github.com/fpang/channel-video-relay/internal/source"
	"github.com/fpang/channel-video-relay/internal/transfer"
)

// Runtime is every component of a configured relay.
type Runtime struct {
	Config       *config.Config
	Source       *source.Client
	Uploader     *s3util.Uploader
	Notifier     *notify.Notifier
	Store        cursor.Store
	Orchestrator *pipeline.Orchestrator

	closeStore func() error
}

// Close releases the cursor backend.
func (r *Runtime) Close() error {
	if r.closeStore == nil {
		return nil
	}
	return r.closeStore()
}

// Build resolves secrets, validates cfg and wires the pipeline.
func Build(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg.Storage.Region)
	if err != nil {
		return nil, err
	}

	if NeedsAWS(cfg) {
		if err := ResolveSecrets(ctx, cfg, ssm.NewFromConfig(awsCfg)); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return assemble(awsCfg, cfg)
}

// assemble wires validated configuration into a Runtime.
func assemble(awsCfg aws.Config, cfg *config.Config) (*Runtime, error) {
	policy, err := pipeline.ParseFailurePolicy(cfg.Pipeline.OnFailure)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := NewCursorStore(awsCfg, cfg.Cursor, cfg.Source.Channel)
	if err != nil {
		return nil, err
	}

	src := source.NewClient(cfg.Source.BaseURL, cfg.Source.Channel, cfg.Source.Token)
	uploader := s3util.NewUploader(NewS3Client(awsCfg, cfg.Storage), cfg.Storage.Bucket, cfg.Storage.PublicURLBase)
	notifier := notify.New(cfg.Webhook.URL,
		notify.WithMaxAttempts(cfg.Webhook.MaxAttempts),
		notify.WithBaseDelay(cfg.Webhook.BaseDelay),
		notify.WithTimeout(cfg.Webhook.Timeout),
		notify.WithRetryClientErrors(cfg.Webhook.RetryClientErrors))
	sc := scanner.New(src,
		scanner.WithPageSize(cfg.Source.PageSize),
		scanner.WithPageDelay(cfg.Source.PageDelay))
	tr := transfer.New(src, uploader, cfg.Source.Channel, cfg.Storage.TempDir)

	opts := []pipeline.Option{
		pipeline.WithChannel(cfg.Source.Channel),
		pipeline.WithFailurePolicy(policy),
	}
	if cfg.Metrics.Enabled {
		ns := cfg.Metrics.Namespace
		opts = append(opts, pipeline.WithMetrics(func() *metrics.Recorder { return metrics.New(ns) }))
	}

	return &Runtime{
		Config:       cfg,
		Source:       src,
		Uploader:     uploader,
		Notifier:     notifier,
		Store:        store,
		Orchestrator: pipeline.New(store, sc, tr, notifier, cfg.ChannelLabel(), opts...),
		closeStore:   closeStore,
	}, nil
}
