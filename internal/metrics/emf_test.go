package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := buf.String()
	if strings.Count(line, "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", line)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(line), &doc); err != nil {
		t.Fatalf("failed to parse EMF output: %v\nOutput: %s", err, line)
	}
	return doc
}

func TestNew_FunctionNameDimension(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "relay-lambda")
	r := New("")
	if r.namespace != DefaultNamespace {
		t.Errorf("expected default namespace, got %s", r.namespace)
	}
	if r.dimensions["FunctionName"] != "relay-lambda" {
		t.Errorf("expected FunctionName dimension, got %q", r.dimensions["FunctionName"])
	}
}

func TestRecorder_Flush(t *testing.T) {
	var buf bytes.Buffer
	rec := NewWithWriter(&buf, "Relay")
	rec.now = func() time.Time { return time.UnixMilli(1700000000000) }
	rec.Dimension("Channel", "Funny").
		Count("VideosFound", 3).
		Count("VideosFailed", 0).
		Duration("RunDuration", 1500*time.Millisecond).
		Property("runId", "abc-123")
	if err := rec.Flush(); err != nil {
		t.Fatal(err)
	}

	doc := decode(t, &buf)
	if doc["Channel"] != "Funny" || doc["runId"] != "abc-123" {
		t.Errorf("missing dimension or property: %v", doc)
	}
	if doc["VideosFound"] != float64(3) || doc["RunDuration"] != float64(1500) {
		t.Errorf("unexpected metric values: %v", doc)
	}

	aws := doc["_aws"].(map[string]any)
	if aws["Timestamp"] != float64(1700000000000) {
		t.Errorf("unexpected timestamp %v", aws["Timestamp"])
	}
	cw := aws["CloudWatchMetrics"].([]any)[0].(map[string]any)
	if cw["Namespace"] != "Relay" {
		t.Errorf("unexpected namespace %v", cw["Namespace"])
	}
	dims := cw["Dimensions"].([]any)[0].([]any)
	if len(dims) != 1 || dims[0] != "Channel" {
		t.Errorf("unexpected dimensions %v", dims)
	}
	defs := cw["Metrics"].([]any)
	if len(defs) != 3 {
		t.Fatalf("expected 3 metric definitions, got %d", len(defs))
	}
	first := defs[0].(map[string]any)
	if first["Name"] != "RunDuration" || first["Unit"] != UnitMilliseconds {
		t.Errorf("expected sorted definitions starting with RunDuration, got %v", first)
	}
}

func TestRecorder_FlushEmpty(t *testing.T) {
	var buf bytes.Buffer
	rec := NewWithWriter(&buf, "Relay").Dimension("Channel", "Funny")
	if err := rec.Flush(); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output without metrics, got %q", buf.String())
	}
}
