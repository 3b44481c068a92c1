package lambdaboot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/fpang/channel-video-relay/internal/config"
	"github.com/fpang/channel-video-relay/internal/cursor"
	"github.com/fpang/channel-video-relay/internal/pipeline"
)

type fakeSSM struct {
	values map[string]string
	calls  []string
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls = append(f.calls, *in.Name)
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("expected decryption")
	}
	v, ok := f.values[*in.Name]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(v)}}, nil
}

func TestResolveSecret(t *testing.T) {
	client := &fakeSSM{values: map[string]string{"/relay/token": "from-ssm"}}
	ctx := context.Background()

	if v, err := ResolveSecret(ctx, client, "inline", "/relay/token"); err != nil || v != "inline" {
		t.Errorf("inline value must win, got %q %v", v, err)
	}
	if v, err := ResolveSecret(ctx, client, "", ""); err != nil || v != "" {
		t.Errorf("expected empty, got %q %v", v, err)
	}
	if v, err := ResolveSecret(ctx, client, "", "/relay/token"); err != nil || v != "from-ssm" {
		t.Errorf("expected SSM value, got %q %v", v, err)
	}
	if _, err := ResolveSecret(ctx, client, "", "/relay/missing"); err == nil {
		t.Error("expected error for missing parameter")
	}
	if _, err := ResolveSecret(ctx, nil, "", "/relay/token"); err == nil {
		t.Error("expected error without client")
	}
	if len(client.calls) != 2 {
		t.Errorf("expected 2 SSM calls, got %v", client.calls)
	}
}

func TestResolveSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Source.TokenParam = "/relay/token"
	cfg.Webhook.URL = "https://inline.example.com"
	cfg.Webhook.URLParam = "/relay/webhook"

	client := &fakeSSM{values: map[string]string{"/relay/token": "tok"}}
	if err := ResolveSecrets(context.Background(), cfg, client); err != nil {
		t.Fatal(err)
	}
	if cfg.Source.Token != "tok" || cfg.Webhook.URL != "https://inline.example.com" {
		t.Errorf("unexpected secrets: %q %q", cfg.Source.Token, cfg.Webhook.URL)
	}
	if len(client.calls) != 1 {
		t.Errorf("expected only the token lookup, got %v", client.calls)
	}
}

func TestS3Options(t *testing.T) {
	var o s3.Options
	for _, fn := range s3Options(config.StorageConfig{
		Endpoint:  "https://minio.local:9000",
		PathStyle: true,
		AccessKey: "AK",
		SecretKey: "SK",
	}) {
		fn(&o)
	}
	if aws.ToString(o.BaseEndpoint) != "https://minio.local:9000" || !o.UsePathStyle {
		t.Errorf("unexpected options: endpoint=%v pathStyle=%v", o.BaseEndpoint, o.UsePathStyle)
	}
	creds, err := o.Credentials.Retrieve(context.Background())
	if err != nil || creds.AccessKeyID != "AK" || creds.SecretAccessKey != "SK" {
		t.Errorf("unexpected credentials %+v %v", creds, err)
	}

	if opts := s3Options(config.StorageConfig{Bucket: "videos"}); len(opts) != 0 {
		t.Errorf("plain AWS config must not add options, got %d", len(opts))
	}
}

func TestNewCursorStore(t *testing.T) {
	tests := []struct {
		backend string
		check   func(cursor.Store) bool
		wantErr bool
	}{
		{config.BackendFile, func(s cursor.Store) bool { _, ok := s.(*cursor.FileStore); return ok }, false},
		{config.BackendDynamo, func(s cursor.Store) bool { _, ok := s.(*cursor.DynamoStore); return ok }, false},
		{config.BackendRedis, func(s cursor.Store) bool { _, ok := s.(*cursor.RedisStore); return ok }, false},
		{config.BackendMemory, func(s cursor.Store) bool { _, ok := s.(*cursor.MemoryStore); return ok }, false},
		{"etcd", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cc := config.CursorConfig{Backend: tt.backend, Path: t.TempDir() + "/offset.txt", Table: "relay", RedisAddr: "localhost:6379"}
			store, closeFn, err := NewCursorStore(aws.Config{Region: "us-east-1"}, cc, "Funny")
			if closeFn == nil {
				t.Fatal("close func must never be nil")
			}
			defer closeFn()
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil || !tt.check(store) {
				t.Errorf("unexpected store %T, err %v", store, err)
			}
		})
	}
}

func TestNeedsAWS(t *testing.T) {
	cfg := config.DefaultConfig()
	if NeedsAWS(cfg) {
		t.Error("file backend without SSM params needs no AWS APIs")
	}
	cfg.Webhook.URLParam = "/relay/webhook"
	if !NeedsAWS(cfg) {
		t.Error("unresolved SSM param needs AWS")
	}
	cfg.Webhook.URL = "https://inline"
	cfg.Cursor.Backend = config.BackendDynamo
	if !NeedsAWS(cfg) {
		t.Error("dynamodb backend needs AWS")
	}
}

func TestAssemble(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Source.BaseURL = "http://gateway"
	cfg.Source.Channel = "Funny"
	cfg.Storage.Bucket = "videos"
	cfg.Storage.PublicURLBase = "https://cdn.example.com"
	cfg.Webhook.URL = "https://hooks.example.com"
	cfg.Cursor.Backend = config.BackendMemory
	cfg.Pipeline.OnFailure = "hold"

	rt, err := assemble(aws.Config{Region: "us-east-1"}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close()

	if rt.Source.Channel() != "Funny" || rt.Uploader.Bucket() != "videos" {
		t.Errorf("unexpected wiring: %+v", rt)
	}
	if got := rt.Uploader.PublicURL("videos/Funny/1_a.mp4"); got != "https://cdn.example.com/videos/Funny/1_a.mp4" {
		t.Errorf("unexpected public URL %s", got)
	}
	if rt.Orchestrator.State() != pipeline.StateIdle {
		t.Errorf("expected idle orchestrator")
	}

	cfg.Pipeline.OnFailure = "retry"
	if _, err := assemble(aws.Config{}, cfg); err == nil {
		t.Error("expected policy error")
	}
}

func TestStartupLog(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cursor.Backend = config.BackendDynamo
	cfg.Cursor.Table = "relay"
	cfg.Webhook.URLParam = "/relay/webhook"
	// Emits to the global logger; this only guards against panics in the
	// builder chain.
	StartupLog("relay-lambda", time.Now(), cfg).Log()
}
