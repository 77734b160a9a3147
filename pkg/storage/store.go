// Package storage persists forecast snapshots and trained occupancy models.
//
// A Snapshot is the latest forecast produced for a resource (plug, parking
// slot) and is what GET /forecast/current serves. Models are cached by the
// key the pipeline derives from the history fingerprint and hyperparameters,
// so repeated requests over the same history skip training.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HatiCode/plugcast/pkg/forecast"
	"github.com/HatiCode/plugcast/pkg/models"
)

// Snapshot is one forecast run for a resource.
type Snapshot struct {
	Resource    string           `json:"resource"`
	RunID       string           `json:"runId"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Fingerprint string           `json:"fingerprint"`
	HistoryRows int              `json:"historyRows"`
	Threshold   float64          `json:"threshold"`
	Weights     []float64        `json:"weights"`
	// Cached marks runs that reused a cached model. Such runs did no
	// training, so Iterations and Converged stay zero.
	Cached      bool             `json:"cached"`
	Iterations  int              `json:"iterations"`
	Converged   bool             `json:"converged"`
	Points      []forecast.Point `json:"points"`
}

// Store persists snapshots and cached models. Implementations must be safe
// for concurrent use; GetLatest and GetModel report absence with found=false
// rather than an error.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, resource string) (Snapshot, bool, error)

	GetModel(ctx context.Context, key string) (*models.Logistic, bool, error)
	PutModel(ctx context.Context, key string, m *models.Logistic) error
}

// NewSnapshot records a pipeline result under a fresh run ID.
func NewSnapshot(resource string, res forecast.Result, threshold float64, generatedAt time.Time) Snapshot {
	s := Snapshot{
		Resource:    resource,
		RunID:       uuid.NewString(),
		GeneratedAt: generatedAt,
		Fingerprint: fmt.Sprintf("%016x", res.Fingerprint),
		HistoryRows: res.HistoryRows,
		Threshold:   threshold,
		Cached:      res.Cached,
		Iterations:  res.Stats.Iterations,
		Converged:   res.Stats.Converged,
		Points:      res.Points,
	}
	if res.Model != nil {
		s.Weights = append([]float64(nil), res.Model.Weights...)
	}
	return s
}

func validResourceName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.') {
			return false
		}
	}
	return true
}
