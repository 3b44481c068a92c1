package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"WARN":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"info":  zerolog.InfoLevel,
		"":      zerolog.InfoLevel,
		"trace": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitWithWriter_EnvOverride(t *testing.T) {
	t.Setenv(LevelEnvVar, "error")
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", false)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Warn().Msg("dropped")
	log.Error().Msg("kept")

	if bytes.Contains(buf.Bytes(), []byte("dropped")) {
		t.Error("warn event should be filtered at error level")
	}
	if !bytes.Contains(buf.Bytes(), []byte("kept")) {
		t.Error("error event should be written")
	}
}

func TestStartupLogger_Emit(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	NewStartupLogger("relay-lambda").
		CommitHash("abc123").
		S3Bucket("media", "videos").
		DynamoTable("cursor", "relay-state").
		SSMParam("webhookUrl", "/relay/prod/webhook-url").
		Feature("metrics", true).
		Config("cursorBackend", "dynamodb").
		InitDuration(150 * time.Millisecond).
		emit(logger.Info())

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if doc["message"] != "Startup complete" {
		t.Errorf("unexpected message %v", doc["message"])
	}
	binary := doc["binary"].(map[string]any)
	if binary["name"] != "relay-lambda" || binary["commitHash"] != "abc123" {
		t.Errorf("unexpected identity %v", binary)
	}
	resources := doc["resources"].(map[string]any)
	if resources["dynamoTables"].(map[string]any)["cursor"] != "relay-state" {
		t.Errorf("unexpected resources %v", resources)
	}
	if doc["features"].(map[string]any)["metrics"] != true {
		t.Errorf("unexpected features %v", doc["features"])
	}
}
