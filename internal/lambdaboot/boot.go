// Package lambdaboot builds the relay's runtime from configuration.
//
// Both binaries need the same subset of: AWS config, the S3 uploader, a
// cursor store, SSM secret resolution and the startup log. Keeping the
// composition here makes each main a short sequence of calls.
package lambdaboot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/fpang/channel-video-relay/internal/config"
	"github.com/fpang/channel-video-relay/internal/cursor"
	"github.com/fpang/channel-video-relay/internal/logging"
)

// SSMAPI is the part of the SSM client used to resolve secrets.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadAWSConfig loads the default AWS config chain for region.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return cfg, nil
}

// NewS3Client creates an S3 client for the configured provider. Static keys,
// a custom endpoint and path-style addressing are only applied when set, so
// plain AWS deployments keep the default credential chain.
func NewS3Client(cfg aws.Config, sc config.StorageConfig) *s3.Client {
	return s3.NewFromConfig(cfg, s3Options(sc)...)
}

func s3Options(sc config.StorageConfig) []func(*s3.Options) {
	var opts []func(*s3.Options)
	if sc.AccessKey != "" {
		opts = append(opts, func(o *s3.Options) {
			o.Credentials = credentials.NewStaticCredentialsProvider(sc.AccessKey, sc.SecretKey, "")
		})
	}
	if sc.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(sc.Endpoint) })
	}
	if sc.PathStyle {
		opts = append(opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	return opts
}

// ResolveSecret returns value when it is set, otherwise the decrypted SSM
// parameter named param. Both empty yields "".
func ResolveSecret(ctx context.Context, client SSMAPI, value, param string) (string, error) {
	if value != "" || param == "" {
		return value, nil
	}
	if client == nil {
		return "", fmt.Errorf("secret parameter %s configured but no SSM client available", param)
	}
	start := time.Now()
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("read SSM parameter %s: %w", param, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %s has no value", param)
	}
	log.Debug().Str("param", param).Dur("elapsed", time.Since(start)).Msg("Secret loaded from SSM")
	return *out.Parameter.Value, nil
}

// ResolveSecrets fills the source token and webhook URL from SSM where the
// config names a parameter instead of a value.
func ResolveSecrets(ctx context.Context, cfg *config.Config, client SSMAPI) error {
	var err error
	if cfg.Source.Token, err = ResolveSecret(ctx, client, cfg.Source.Token, cfg.Source.TokenParam); err != nil {
		return fmt.Errorf("source token: %w", err)
	}
	if cfg.Webhook.URL, err = ResolveSecret(ctx, client, cfg.Webhook.URL, cfg.Webhook.URLParam); err != nil {
		return fmt.Errorf("webhook url: %w", err)
	}
	return nil
}

// NewCursorStore opens the configured backend. The returned close func
// releases connections and is never nil. awsCfg is only used by the
// dynamodb backend.
func NewCursorStore(awsCfg aws.Config, cc config.CursorConfig, channel string) (cursor.Store, func() error, error) {
	noop := func() error { return nil }
	switch cc.Backend {
	case config.BackendFile, "":
		return cursor.NewFileStore(cc.Path), noop, nil
	case config.BackendDynamo:
		return cursor.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cc.Table, channel), noop, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cc.RedisAddr})
		return cursor.NewRedisStore(client, channel), client.Close, nil
	case config.BackendMemory:
		return cursor.NewMemoryStore(cursor.Cursor{}), noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported cursor backend: %s", cc.Backend)
	}
}

// NeedsAWS reports whether any configured component talks to AWS APIs
// besides S3: the dynamodb cursor or SSM-held secrets.
func NeedsAWS(cfg *config.Config) bool {
	return cfg.Cursor.Backend == config.BackendDynamo ||
		(cfg.Source.Token == "" && cfg.Source.TokenParam != "") ||
		(cfg.Webhook.URL == "" && cfg.Webhook.URLParam != "")
}

// StartupLog returns a StartupLogger prefilled from cfg.
func StartupLog(name string, initStart time.Time, cfg *config.Config) *logging.StartupLogger {
	sl := logging.NewStartupLogger(name).
		InitDuration(time.Since(initStart)).
		S3Bucket("media", cfg.Storage.Bucket).
		Feature("metrics", cfg.Metrics.Enabled).
		Feature("customEndpoint", cfg.Storage.Endpoint != "").
		Config("channel", cfg.Source.Channel).
		Config("cursorBackend", cfg.Cursor.Backend).
		Config("onFailure", cfg.Pipeline.OnFailure)
	switch cfg.Cursor.Backend {
	case config.BackendDynamo:
		sl.DynamoTable("cursor", cfg.Cursor.Table)
	case config.BackendFile:
		sl.Config("cursorPath", cfg.Cursor.Path)
	case config.BackendRedis:
		sl.Config("redisAddr", cfg.Cursor.RedisAddr)
	}
	if cfg.Source.TokenParam != "" {
		sl.SSMParam("sourceToken", cfg.Source.TokenParam)
	}
	if cfg.Webhook.URLParam != "" {
		sl.SSMParam("webhookUrl", cfg.Webhook.URLParam)
	}
	return sl
}
