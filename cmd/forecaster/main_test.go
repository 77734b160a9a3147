package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/HatiCode/plugcast/cmd/forecaster/metrics"
	"github.com/HatiCode/plugcast/pkg/forecast"
	"github.com/HatiCode/plugcast/pkg/models"
	"github.com/HatiCode/plugcast/pkg/series"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *metrics.Metrics {
	return metrics.NewWithRegistry(prometheus.NewRegistry(), "test")
}

func fastOptions() forecast.Options {
	return forecast.Options{
		Model:     models.Config{LearningRate: 0.05, Iterations: 100, L2: 0.01},
		Threshold: forecast.DefaultThreshold,
	}
}

// writeHistoryFile writes one day of history ending at 23:55 on day and
// returns its path.
func writeHistoryFile(t *testing.T, dir, name string, day time.Time) string {
	t.Helper()

	var b strings.Builder
	for ts := day; ts.Before(day.Add(24 * time.Hour)); ts = ts.Add(series.Interval) {
		label := 0
		if ts.Hour() >= 9 && ts.Hour() < 18 {
			label = 1
		}
		fmt.Fprintf(&b, "%s\t%d\n", ts.Format(series.TimestampLayout), label)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write history: %v", err)
	}
	return path
}
