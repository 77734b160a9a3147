package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HatiCode/plugcast/cmd/forecaster/metrics"
	"github.com/HatiCode/plugcast/pkg/forecast"
	"github.com/HatiCode/plugcast/pkg/series"
)

// BatchStats summarizes a batch run.
type BatchStats struct {
	Processed int
	Failed    int
}

// batchRunner forecasts every history file in a folder.
type batchRunner struct {
	pipeline *forecast.Pipeline
	opts     forecast.Options
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Run forecasts each *.txt file in inputDir and writes <name>_pred.json to
// outputDir, creating it if needed. A file that fails is logged and counted;
// the remaining files are still processed.
func (b *batchRunner) Run(ctx context.Context, inputDir, outputDir string) (BatchStats, error) {
	var stats BatchStats

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return stats, fmt.Errorf("read input folder: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return stats, fmt.Errorf("create output folder: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".txt" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		inPath := filepath.Join(inputDir, entry.Name())
		outPath := filepath.Join(outputDir, OutputName(entry.Name()))

		start := time.Now()
		occupied, err := b.forecastFile(ctx, inPath, outPath)
		if err != nil {
			stats.Failed++
			b.metrics.RecordError("batch", "file_failed")
			b.logger.Error("forecast failed", "file", inPath, "error", err)
			continue
		}

		stats.Processed++
		b.logger.Info("forecast written",
			"file", inPath,
			"output", outPath,
			"occupied_slots", occupied,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return stats, nil
}

func (b *batchRunner) forecastFile(ctx context.Context, inPath, outPath string) (int, error) {
	f, err := os.Open(inPath)
	if err != nil {
		return 0, err
	}
	obs, err := series.ParseTSV(f)
	f.Close()
	if err != nil {
		return 0, err
	}

	res, err := b.pipeline.Run(ctx, obs, b.opts)
	if err != nil {
		return 0, err
	}
	b.metrics.RecordRun(res)

	data, err := json.MarshalIndent(res.Points, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode forecast: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return 0, fmt.Errorf("write forecast: %w", err)
	}

	return res.Occupied, nil
}

// OutputName maps "plug_7.txt" to "plug_7_pred.json".
func OutputName(inputName string) string {
	return strings.TrimSuffix(inputName, filepath.Ext(inputName)) + "_pred.json"
}
