package forecast

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/HatiCode/plugcast/pkg/features"
	"github.com/HatiCode/plugcast/pkg/models"
)

func TestTimestamps(t *testing.T) {
	last := time.Date(2025, 3, 10, 23, 55, 0, 0, time.UTC)
	ts := Timestamps(last)

	if len(ts) != Horizon {
		t.Fatalf("len(Timestamps) = %d, want %d", len(ts), Horizon)
	}
	if !ts[0].Equal(last.Add(5 * time.Minute)) {
		t.Errorf("first = %v, want %v", ts[0], last.Add(5*time.Minute))
	}
	if !ts[Horizon-1].Equal(last.Add(12 * time.Hour)) {
		t.Errorf("last = %v, want %v", ts[Horizon-1], last.Add(12*time.Hour))
	}
	for i := 1; i < len(ts); i++ {
		if ts[i].Sub(ts[i-1]) != Step {
			t.Fatalf("slot %d spacing = %v, want %v", i, ts[i].Sub(ts[i-1]), Step)
		}
	}
}

func TestForecast_Threshold(t *testing.T) {
	last := time.Date(2025, 3, 10, 23, 55, 0, 0, time.UTC)

	tests := []struct {
		name      string
		bias      float64
		threshold float64
		want      int
	}{
		{name: "probability above threshold", bias: 2, threshold: 0.6, want: 1},
		{name: "probability below threshold", bias: -2, threshold: 0.6, want: 0},
		{name: "probability equal to threshold", bias: 0, threshold: 0.5, want: 1},
		{name: "zero threshold always occupied", bias: -10, threshold: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := make([]float64, features.Width)
			w[0] = tt.bias
			points, err := Forecast(last, &models.Logistic{Weights: w}, tt.threshold)
			if err != nil {
				t.Fatalf("Forecast() error = %v", err)
			}
			for i, p := range points {
				if p.Value != tt.want {
					t.Fatalf("points[%d].Value = %d, want %d", i, p.Value, tt.want)
				}
			}
		})
	}
}

func TestForecast_Errors(t *testing.T) {
	last := time.Date(2025, 3, 10, 23, 55, 0, 0, time.UTC)

	if _, err := Forecast(last, nil, DefaultThreshold); !errors.Is(err, ErrNoModel) {
		t.Errorf("Forecast(nil model) error = %v, want ErrNoModel", err)
	}

	if _, err := Forecast(last, &models.Logistic{Weights: []float64{0, 1}}, DefaultThreshold); err == nil {
		t.Error("Forecast(wrong width) expected error, got nil")
	}
}

func TestPoint_JSON(t *testing.T) {
	p := Point{Timestamp: time.Date(2025, 3, 11, 8, 5, 0, 0, time.UTC), Value: 1}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"timestamp":"2025-03-11 08:05:00","value":1}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	var decoded Point
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !decoded.Timestamp.Equal(p.Timestamp) || decoded.Value != p.Value {
		t.Errorf("Unmarshal() = %+v, want %+v", decoded, p)
	}
}

func TestValidateThreshold(t *testing.T) {
	for _, th := range []float64{0, 0.6, 1} {
		if err := ValidateThreshold(th); err != nil {
			t.Errorf("ValidateThreshold(%v) = %v, want nil", th, err)
		}
	}
	for _, th := range []float64{-0.1, 1.5} {
		if err := ValidateThreshold(th); err == nil {
			t.Errorf("ValidateThreshold(%v) = nil, want error", th)
		}
	}
}

func TestOccupied(t *testing.T) {
	points := []Point{{Value: 1}, {Value: 0}, {Value: 1}}
	if got := Occupied(points); got != 2 {
		t.Errorf("Occupied() = %d, want 2", got)
	}
}
