package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/plugcast/pkg/features"
	"github.com/HatiCode/plugcast/pkg/models"
	"github.com/HatiCode/plugcast/pkg/series"
)

// ModelCache stores trained models keyed by the history they were fitted on.
// Implementations must be safe for concurrent use.
type ModelCache interface {
	GetModel(ctx context.Context, key string) (*models.Logistic, bool, error)
	PutModel(ctx context.Context, key string, m *models.Logistic) error
}

// Options configures a single pipeline run.
type Options struct {
	Model     models.Config
	Threshold float64
}

// DefaultOptions returns the trainer defaults with DefaultThreshold.
func DefaultOptions() Options {
	return Options{
		Model:     models.DefaultConfig(),
		Threshold: DefaultThreshold,
	}
}

// Result is the outcome of one pipeline run.
type Result struct {
	Points      []Point
	Model       *models.Logistic
	Stats       TrainStats
	Fingerprint uint64
	HistoryRows int
	Occupied    int
	First       time.Time
	Last        time.Time
	Cached      bool

	TrainDuration    time.Duration
	ForecastDuration time.Duration
}

// TrainStats mirrors models.TrainStats so callers need only this package.
type TrainStats = models.TrainStats

// Pipeline runs regularize → encode → train → forecast.
// The zero value trains on every call; set Cache to reuse models across
// calls with identical history and hyperparameters.
type Pipeline struct {
	Cache  ModelCache
	Logger *slog.Logger
}

// NewPipeline creates a Pipeline. cache may be nil.
func NewPipeline(cache ModelCache, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{Cache: cache, Logger: logger}
}

// Run is shorthand for a cache-less Pipeline run.
func Run(ctx context.Context, obs []series.Observation, opts Options) (Result, error) {
	return NewPipeline(nil, nil).Run(ctx, obs, opts)
}

// Run forecasts the Horizon slots following the latest observation in obs.
//
// Input errors from regularization are returned wrapped and still match
// series.ErrMalformedInput. Cache failures are logged and never fail the run.
func (p *Pipeline) Run(ctx context.Context, obs []series.Observation, opts Options) (Result, error) {
	if err := ValidateThreshold(opts.Threshold); err != nil {
		return Result{}, err
	}
	if err := opts.Model.Validate(); err != nil {
		return Result{}, fmt.Errorf("model config: %w", err)
	}

	reg, err := series.Regularize(obs)
	if err != nil {
		return Result{}, fmt.Errorf("regularize: %w", err)
	}

	res := Result{
		Fingerprint: reg.Fingerprint(),
		HistoryRows: reg.Len(),
		First:       reg.Start,
		Last:        reg.Last(),
	}
	key := CacheKey(res.Fingerprint, opts.Model)

	trainStart := time.Now()
	if p.Cache != nil {
		m, found, err := p.Cache.GetModel(ctx, key)
		if err != nil {
			p.logger().Warn("model cache lookup failed", "key", key, "error", err)
		} else if found && m.Width() == features.Width {
			res.Model = m
			res.Cached = true
		}
	}

	if res.Model == nil {
		X := features.Matrix(reg.Timestamps())
		m, stats, err := models.Train(ctx, X, reg.Labels, opts.Model)
		if err != nil {
			return Result{}, fmt.Errorf("train: %w", err)
		}
		res.Model = m
		res.Stats = stats

		if p.Cache != nil {
			if err := p.Cache.PutModel(ctx, key, m); err != nil {
				p.logger().Warn("model cache store failed", "key", key, "error", err)
			}
		}
	}
	res.TrainDuration = time.Since(trainStart)

	forecastStart := time.Now()
	points, err := Forecast(res.Last, res.Model, opts.Threshold)
	if err != nil {
		return Result{}, fmt.Errorf("forecast: %w", err)
	}
	res.ForecastDuration = time.Since(forecastStart)
	res.Points = points
	res.Occupied = Occupied(points)

	p.logger().Debug("pipeline run complete",
		"history_rows", res.HistoryRows,
		"fingerprint", fmt.Sprintf("%016x", res.Fingerprint),
		"cached", res.Cached,
		"iterations", res.Stats.Iterations,
		"converged", res.Stats.Converged,
		"occupied_slots", res.Occupied,
		"train_ms", res.TrainDuration.Milliseconds(),
	)

	return res, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// CacheKey identifies a model by the history fingerprint and the
// hyperparameters it was trained with.
func CacheKey(fingerprint uint64, cfg models.Config) string {
	return fmt.Sprintf("%016x-%g-%d-%g", fingerprint, cfg.LearningRate, cfg.Iterations, cfg.L2)
}
