// Package main implements the watch-mode forecast loop:
//
//	collect → regularize → train (or reuse) → forecast → store snapshot
//
// Run executes Tick at regular intervals. Each tick replaces the resource's
// stored snapshot, which GET /forecast/current serves.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/HatiCode/plugcast/cmd/forecaster/metrics"
	"github.com/HatiCode/plugcast/pkg/adapters"
	"github.com/HatiCode/plugcast/pkg/forecast"
	"github.com/HatiCode/plugcast/pkg/storage"
)

// Forecaster keeps one resource's snapshot current.
type Forecaster struct {
	resource string
	adapter  adapters.Adapter
	pipeline *forecast.Pipeline
	store    storage.Store
	opts     forecast.Options
	window   time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a Forecaster. A nil pipeline trains through store's model cache.
func New(
	resource string,
	adapter adapters.Adapter,
	pipeline *forecast.Pipeline,
	store storage.Store,
	opts forecast.Options,
	window time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Forecaster {
	if logger == nil {
		logger = slog.Default()
	}
	if pipeline == nil {
		pipeline = forecast.NewPipeline(store, logger)
	}

	return &Forecaster{
		resource: resource,
		adapter:  adapter,
		pipeline: pipeline,
		store:    store,
		opts:     opts,
		window:   window,
		logger:   logger.With("resource", resource),
		metrics:  m,
	}
}

// Close releases the adapter's resources, such as a database pool, when it
// holds any.
func (f *Forecaster) Close() error {
	if c, ok := f.adapter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Run executes the forecast loop at regular intervals.
// Blocks until ctx is canceled.
func (f *Forecaster) Run(ctx context.Context, interval time.Duration) error {
	f.logger.Info("starting forecast loop", "interval", interval, "window", f.window)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := f.Tick(ctx); err != nil {
		f.logger.Error("initial forecast tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("forecast loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := f.Tick(ctx); err != nil {
				f.logger.Error("forecast tick failed", "error", err)
			}
		}
	}
}

// Tick performs one forecast cycle.
func (f *Forecaster) Tick(ctx context.Context) error {
	start := time.Now()

	obs, err := f.adapter.Collect(ctx, f.window)
	if err != nil {
		f.metrics.RecordError("adapter", "collect_failed")
		return fmt.Errorf("collect: %w", err)
	}
	collectDuration := time.Since(start)

	res, err := f.pipeline.Run(ctx, obs, f.opts)
	if err != nil {
		f.metrics.RecordError("pipeline", "run_failed")
		return fmt.Errorf("forecast: %w", err)
	}
	f.metrics.RecordRun(res)

	snapshot := storage.NewSnapshot(f.resource, res, f.opts.Threshold, time.Now())
	if err := f.store.Put(ctx, snapshot); err != nil {
		f.metrics.RecordError("store", "put_failed")
		return fmt.Errorf("store: %w", err)
	}

	f.logger.Info("forecast tick complete",
		"run_id", snapshot.RunID,
		"adapter", f.adapter.Name(),
		"observations", len(obs),
		"history_rows", res.HistoryRows,
		"occupied_slots", res.Occupied,
		"cached", res.Cached,
		"collect_ms", collectDuration.Milliseconds(),
		"train_ms", res.TrainDuration.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)

	return nil
}
