// Package models provides the occupancy model: logistic regression fitted by
// full-batch gradient descent with L2 regularization and early stopping.
package models

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Tolerance is the gradient norm below which training stops early.
const Tolerance = 1e-6

// sigmoidClamp bounds the logit before exponentiation so exp never overflows.
const sigmoidClamp = 500.0

var (
	// ErrEmptyTrainingSet is returned when Train is called without rows.
	ErrEmptyTrainingSet = errors.New("training set is empty")

	// ErrShapeMismatch is returned when rows and labels disagree in length
	// or rows have differing widths.
	ErrShapeMismatch = errors.New("feature matrix and labels have mismatched shapes")
)

// Config holds the trainer hyperparameters.
type Config struct {
	LearningRate float64
	Iterations   int
	L2           float64
}

// DefaultConfig returns the hyperparameters used when none are configured.
func DefaultConfig() Config {
	return Config{
		LearningRate: 0.05,
		Iterations:   3000,
		L2:           0.01,
	}
}

// Validate checks the hyperparameters for values that cannot train.
func (c Config) Validate() error {
	if c.LearningRate <= 0 || math.IsNaN(c.LearningRate) || math.IsInf(c.LearningRate, 0) {
		return fmt.Errorf("learning rate must be a positive finite number, got %v", c.LearningRate)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0, got %d", c.Iterations)
	}
	if c.L2 < 0 || math.IsNaN(c.L2) {
		return fmt.Errorf("l2 must be >= 0, got %v", c.L2)
	}
	return nil
}

// TrainStats describes how a training run ended.
type TrainStats struct {
	// Iterations is the number of gradient steps taken.
	Iterations int
	// Converged is true when training stopped on the gradient norm rather
	// than on the iteration budget.
	Converged bool
	// GradientNorm is the Euclidean norm of the last gradient applied.
	GradientNorm float64
}

// Logistic is a trained weight vector. Weights[0] is the bias.
// A Logistic is never modified after Train returns it.
type Logistic struct {
	Weights []float64
}

// Sigmoid returns 1/(1+exp(-z)) with z clamped to [-500, 500].
func Sigmoid(z float64) float64 {
	if z > sigmoidClamp {
		z = sigmoidClamp
	} else if z < -sigmoidClamp {
		z = -sigmoidClamp
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

// Train fits a logistic regression model to X and y.
//
// Every row of X must already start with the constant 1.0 bias column.
// Weights start at zero. Each iteration computes p = σ(X·w) and the gradient
// g = Xᵀ(p−y)/N; when cfg.L2 > 0, cfg.L2·w[j] is added for every j except
// the bias. Weights move by −cfg.LearningRate·g. Training stops after
// cfg.Iterations steps or once ‖g‖ < Tolerance.
//
// Single-class labels and hitting the iteration budget are not errors; the
// returned model is usable either way. An error is returned only for invalid
// input or when ctx is done.
func Train(ctx context.Context, X [][]float64, y []int, cfg Config) (*Logistic, TrainStats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, TrainStats{}, err
	}
	if len(X) == 0 {
		return nil, TrainStats{}, ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return nil, TrainStats{}, fmt.Errorf("%w: %d rows, %d labels", ErrShapeMismatch, len(X), len(y))
	}

	width := len(X[0])
	if width == 0 {
		return nil, TrainStats{}, fmt.Errorf("%w: rows have no columns", ErrShapeMismatch)
	}
	target := make([]float64, len(y))
	for i, row := range X {
		if len(row) != width {
			return nil, TrainStats{}, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShapeMismatch, i, len(row), width)
		}
		if y[i] != 0 && y[i] != 1 {
			return nil, TrainStats{}, fmt.Errorf("label %d at row %d must be 0 or 1", y[i], i)
		}
		target[i] = float64(y[i])
	}

	n := float64(len(X))
	w := make([]float64, width)
	grad := make([]float64, width)
	stats := TrainStats{}

	for iter := 0; iter < cfg.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		for j := range grad {
			grad[j] = 0
		}
		for i, row := range X {
			residual := Sigmoid(dot(row, w)) - target[i]
			for j, x := range row {
				grad[j] += x * residual
			}
		}
		for j := range grad {
			grad[j] /= n
		}

		if cfg.L2 > 0 {
			for j := 1; j < width; j++ {
				grad[j] += cfg.L2 * w[j]
			}
		}

		for j := range w {
			w[j] -= cfg.LearningRate * grad[j]
		}

		stats.Iterations = iter + 1
		stats.GradientNorm = norm(grad)
		if stats.GradientNorm < Tolerance {
			stats.Converged = true
			break
		}
	}

	return &Logistic{Weights: w}, stats, nil
}

// Width returns the number of columns the model expects, bias included.
func (m *Logistic) Width() int {
	return len(m.Weights)
}

// Probability returns σ(x·w) for a single design row.
func (m *Logistic) Probability(x []float64) float64 {
	return Sigmoid(dot(x, m.Weights))
}

// Predict returns the probability for every row of X.
func (m *Logistic) Predict(X [][]float64) []float64 {
	p := make([]float64, len(X))
	for i, row := range X {
		p[i] = m.Probability(row)
	}
	return p
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
