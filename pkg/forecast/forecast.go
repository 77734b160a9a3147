// Package forecast turns a trained occupancy model into a binary forecast.
//
// A forecast always covers the fixed horizon of 144 five-minute slots (12 h)
// starting one step after the last historical timestamp. Each slot is
// encoded with the same feature encoder used at training time, scored with
// the model, and thresholded: value is 1 when the probability is at least
// the threshold. The threshold is a plain comparison, so changing it never
// requires retraining.
package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HatiCode/plugcast/pkg/features"
	"github.com/HatiCode/plugcast/pkg/models"
	"github.com/HatiCode/plugcast/pkg/series"
)

const (
	// Horizon is the number of forecast slots.
	Horizon = 144
	// Step is the spacing between forecast slots.
	Step = series.Interval
	// DefaultThreshold is the decision threshold used when none is given.
	DefaultThreshold = 0.6
)

// ErrNoModel is returned when Forecast is called without a trained model.
var ErrNoModel = errors.New("forecast requires a trained model")

// Point is a single forecast slot.
type Point struct {
	Timestamp time.Time
	Value     int
}

type pointJSON struct {
	Timestamp string `json:"timestamp"`
	Value     int    `json:"value"`
}

// MarshalJSON encodes the point as {"timestamp":"2006-01-02 15:04:05","value":v}.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(pointJSON{
		Timestamp: p.Timestamp.Format(series.TimestampLayout),
		Value:     p.Value,
	})
}

// UnmarshalJSON decodes the representation produced by MarshalJSON.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw pointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(series.TimestampLayout, raw.Timestamp)
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}
	p.Timestamp = ts
	p.Value = raw.Value
	return nil
}

// Timestamps returns the Horizon slot timestamps following last.
func Timestamps(last time.Time) []time.Time {
	ts := make([]time.Time, Horizon)
	for i := range ts {
		ts[i] = last.Add(time.Duration(i+1) * Step)
	}
	return ts
}

// Probabilities returns the model's occupancy probability for every slot
// following last.
func Probabilities(last time.Time, m *models.Logistic) ([]time.Time, []float64, error) {
	if m == nil {
		return nil, nil, ErrNoModel
	}
	if m.Width() != features.Width {
		return nil, nil, fmt.Errorf("model has %d weights, want %d", m.Width(), features.Width)
	}

	ts := Timestamps(last)
	return ts, m.Predict(features.Matrix(ts)), nil
}

// Forecast predicts the occupancy state of the Horizon slots following last.
func Forecast(last time.Time, m *models.Logistic, threshold float64) ([]Point, error) {
	ts, probs, err := Probabilities(last, m)
	if err != nil {
		return nil, err
	}

	points := make([]Point, len(ts))
	for i := range ts {
		value := 0
		if probs[i] >= threshold {
			value = 1
		}
		points[i] = Point{Timestamp: ts[i], Value: value}
	}
	return points, nil
}

// Occupied returns the number of points predicted as occupied.
func Occupied(points []Point) int {
	n := 0
	for _, p := range points {
		n += p.Value
	}
	return n
}

// ValidateThreshold reports whether threshold is a usable decision threshold.
func ValidateThreshold(threshold float64) error {
	if !(threshold >= 0 && threshold <= 1) {
		return fmt.Errorf("threshold must be within [0, 1], got %v", threshold)
	}
	return nil
}
