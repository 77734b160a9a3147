// Package metrics provides Prometheus instrumentation for the forecaster.
//
// Metrics exposed:
//   - plugcast_train_seconds: Histogram of model training duration
//   - plugcast_train_iterations: Histogram of gradient steps per training run
//   - plugcast_train_converged_total: Counter of training runs by convergence
//   - plugcast_forecast_seconds: Histogram of horizon prediction duration
//   - plugcast_history_rows: Gauge of regularized history length of the last run
//   - plugcast_predicted_occupied_slots: Gauge of occupied slots in the last forecast
//   - plugcast_cache_requests_total: Counter of model cache lookups by result
//   - plugcast_errors_total: Counter of errors by component and reason
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/plugcast/pkg/forecast"
)

// Metrics holds all Prometheus metrics for the forecaster.
type Metrics struct {
	TrainSeconds           prometheus.Histogram
	TrainIterations        prometheus.Histogram
	TrainConverged         *prometheus.CounterVec
	ForecastSeconds        prometheus.Histogram
	HistoryRows            prometheus.Gauge
	PredictedOccupiedSlots prometheus.Gauge
	CacheRequests          *prometheus.CounterVec
	ErrorsTotal            *prometheus.CounterVec
}

// New creates the metrics and registers them with the default registry.
func New(mode string) *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, mode)
}

// NewWithRegistry registers the metrics with reg. Tests pass a fresh
// prometheus.NewRegistry to avoid duplicate registration panics.
func NewWithRegistry(reg prometheus.Registerer, mode string) *Metrics {
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"mode": mode}

	return &Metrics{
		TrainSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "plugcast_train_seconds",
			Help:        "Time spent training the occupancy model",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 10),
		}),

		TrainIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "plugcast_train_iterations",
			Help:        "Gradient descent iterations per training run",
			ConstLabels: constLabels,
			Buckets:     []float64{1, 10, 100, 500, 1000, 2000, 3000, 5000},
		}),

		TrainConverged: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "plugcast_train_converged_total",
			Help:        "Training runs by whether they stopped on the gradient tolerance",
			ConstLabels: constLabels,
		}, []string{"converged"}),

		ForecastSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "plugcast_forecast_seconds",
			Help:        "Time spent predicting the forecast horizon",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),

		HistoryRows: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "plugcast_history_rows",
			Help:        "Regularized history length of the last forecast",
			ConstLabels: constLabels,
		}),

		PredictedOccupiedSlots: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "plugcast_predicted_occupied_slots",
			Help:        "Slots predicted occupied in the last forecast",
			ConstLabels: constLabels,
		}),

		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "plugcast_cache_requests_total",
			Help:        "Model cache lookups by result",
			ConstLabels: constLabels,
		}, []string{"result"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "plugcast_errors_total",
			Help:        "Total number of errors by component and reason",
			ConstLabels: constLabels,
		}, []string{"component", "reason"}),
	}
}

// RecordRun records the outcome of a successful pipeline run. Training
// metrics are only observed when a model was actually trained.
func (m *Metrics) RecordRun(res forecast.Result) {
	if m == nil {
		return
	}

	if res.Cached {
		m.CacheRequests.WithLabelValues("hit").Inc()
	} else {
		m.CacheRequests.WithLabelValues("miss").Inc()
		m.TrainSeconds.Observe(res.TrainDuration.Seconds())
		m.TrainIterations.Observe(float64(res.Stats.Iterations))
		m.TrainConverged.WithLabelValues(strconv.FormatBool(res.Stats.Converged)).Inc()
	}

	m.ForecastSeconds.Observe(res.ForecastDuration.Seconds())
	m.HistoryRows.Set(float64(res.HistoryRows))
	m.PredictedOccupiedSlots.Set(float64(res.Occupied))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
