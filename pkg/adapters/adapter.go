// Package adapters provides history sources for the occupancy forecaster.
//
// Each adapter fetches raw (timestamp, occupied) observations for a single
// resource from an external system and returns them as series.Observation
// values. Adapters do not sort, deduplicate or regularize; that is the
// job of series.Regularize. Available adapters:
//   - FileAdapter       - reads a tab-separated history file
//   - HTTPAdapter       - calls any JSON REST API and extracts fields with gjson paths
//   - PrometheusAdapter - evaluates a range query against Prometheus or VictoriaMetrics
//   - PostgresAdapter   - selects rows from an occupancy table
package adapters

import (
	"context"
	"time"

	"github.com/HatiCode/plugcast/pkg/series"
)

// Adapter is the interface that all history sources implement.
//
// Collect is synchronous and must respect context cancellation and
// deadlines. A window of zero means "everything available".
type Adapter interface {
	Collect(ctx context.Context, window time.Duration) ([]series.Observation, error)

	// Name returns a short identifier such as "file", "http" or "postgres".
	Name() string
}

// trimToWindow keeps observations not older than window before the latest
// observation. obs is returned unchanged when window <= 0.
func trimToWindow(obs []series.Observation, window time.Duration) []series.Observation {
	if window <= 0 || len(obs) == 0 {
		return obs
	}

	latest := obs[0].Timestamp
	for _, o := range obs[1:] {
		if o.Timestamp.After(latest) {
			latest = o.Timestamp
		}
	}

	cutoff := latest.Add(-window)
	kept := obs[:0:0]
	for _, o := range obs {
		if !o.Timestamp.Before(cutoff) {
			kept = append(kept, o)
		}
	}
	return kept
}
