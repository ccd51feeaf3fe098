package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestInitWritesToConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer func() { _ = Sync() }()

	Get().Info(context.Background(), "intake accepted", String("external_id", "acme/repo:abc"))

	out := buf.String()
	if !strings.Contains(out, "intake accepted") {
		t.Fatalf("message missing from output: %q", out)
	}
	if !strings.Contains(out, "external_id") {
		t.Fatalf("field missing from output: %q", out)
	}
	if !strings.Contains(out, "source=") {
		t.Fatalf("call site missing from output: %q", out)
	}
}

func TestJSONFormatEmitsParsableRecords(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf), WithJSONFormat()); err != nil {
		t.Fatalf("init: %v", err)
	}

	Get().Warn(context.Background(), "queue refused task", Int("depth", 128))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "queue refused task" {
		t.Fatalf("unexpected msg: %v", rec["msg"])
	}
	if rec["depth"] != float64(128) {
		t.Fatalf("unexpected depth: %v", rec["depth"])
	}
}

func TestNamedGroupsFields(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("init: %v", err)
	}

	Named("worker").Info(context.Background(), "drained", Int("pending", 0))

	if !strings.Contains(buf.String(), "worker.pending") {
		t.Fatalf("expected grouped field, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("init: %v", err)
	}

	ctx := context.Background()
	Get().Debug(ctx, "hidden at info")
	if buf.Len() != 0 {
		t.Fatalf("debug record leaked at info level: %q", buf.String())
	}

	if err := SetLevelString("debug"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	Get().Debug(ctx, "visible at debug")
	if !strings.Contains(buf.String(), "visible at debug") {
		t.Fatalf("debug record missing: %q", buf.String())
	}

	if err := SetLevelString("nope"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	// Restore for other tests sharing the package-level state.
	if err := SetLevelString(""); err != nil {
		t.Fatalf("restore level: %v", err)
	}
}
