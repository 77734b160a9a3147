package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/HatiCode/plugcast/pkg/forecast"
)

func writeEmptyFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestBatch() *batchRunner {
	return &batchRunner{
		pipeline: forecast.NewPipeline(nil, discardLogger()),
		opts:     fastOptions(),
		logger:   discardLogger(),
		metrics:  testMetrics(),
	}
}

func TestOutputName(t *testing.T) {
	tests := map[string]string{
		"plug_7.txt":    "plug_7_pred.json",
		"station.a.txt": "station.a_pred.json",
	}
	for in, want := range tests {
		if got := OutputName(in); got != want {
			t.Errorf("OutputName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBatch_Run(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "nested", "out")
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	writeHistoryFile(t, in, "plug_a.txt", day)
	writeHistoryFile(t, in, "plug_b.txt", day.Add(24*time.Hour))
	if err := os.WriteFile(filepath.Join(in, "notes.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(in, "broken.txt"), []byte("2025-03-10 08:00:00\tmaybe\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(in, "dir.txt"), 0o755); err != nil {
		t.Fatal(err)
	}

	stats, err := newTestBatch().Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if stats.Processed != 2 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 2 processed and 1 failed", stats)
	}

	data, err := os.ReadFile(filepath.Join(out, "plug_a_pred.json"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.HasPrefix(string(data), "[\n  {\n    \"timestamp\": \"2025-03-11 00:00:00\",\n    \"value\": ") {
		t.Errorf("unexpected output layout:\n%.120s", data)
	}

	var points []forecast.Point
	if err := json.Unmarshal(data, &points); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(points) != forecast.Horizon {
		t.Errorf("points = %d, want %d", len(points), forecast.Horizon)
	}

	if _, err := os.Stat(filepath.Join(out, "broken_pred.json")); !os.IsNotExist(err) {
		t.Error("failed file must not produce output")
	}
	if _, err := os.Stat(filepath.Join(out, "notes_pred.json")); !os.IsNotExist(err) {
		t.Error("non-.txt files must be skipped")
	}
}

func TestBatch_MissingInputFolder(t *testing.T) {
	_, err := newTestBatch().Run(context.Background(), filepath.Join(t.TempDir(), "missing"), t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing input folder")
	}
}

func TestBatch_Canceled(t *testing.T) {
	in := t.TempDir()
	writeHistoryFile(t, in, "plug.txt", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestBatch().Run(ctx, in, t.TempDir()); err == nil {
		t.Fatal("expected context error")
	}
}
