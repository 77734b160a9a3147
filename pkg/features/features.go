// Package features encodes timestamps into the cyclical feature vectors used
// by the occupancy model.
//
// Hour of day, minute of hour and day of week are each mapped onto the unit
// circle (sin/cos of 2π·x/period) so that values on either side of a period
// boundary stay close: 23:55 sits next to 00:00, Sunday next to Monday.
// A flat weekend indicator completes the vector.
//
// Encoding is a pure function of the timestamp's wall clock in its own
// location. The same encoder must be used for training rows and forecast rows.
package features

import (
	"math"
	"time"
)

// Size is the number of features in a Vector, excluding the bias.
const Size = 7

// Width is the number of columns in a design matrix row: bias plus features.
const Width = Size + 1

// Vector is the encoded representation of a single timestamp.
type Vector [Size]float64

// Names lists the feature columns in Vector order.
var Names = [Size]string{
	"hour_sin", "hour_cos",
	"minute_sin", "minute_cos",
	"dow_sin", "dow_cos",
	"is_weekend",
}

// Encode maps ts to its feature vector.
func Encode(ts time.Time) Vector {
	hour := float64(ts.Hour())
	minute := float64(ts.Minute())
	dow := float64(DayOfWeek(ts))

	weekend := 0.0
	if dow >= 5 {
		weekend = 1.0
	}

	return Vector{
		math.Sin(2 * math.Pi * hour / 24),
		math.Cos(2 * math.Pi * hour / 24),
		math.Sin(2 * math.Pi * minute / 60),
		math.Cos(2 * math.Pi * minute / 60),
		math.Sin(2 * math.Pi * dow / 7),
		math.Cos(2 * math.Pi * dow / 7),
		weekend,
	}
}

// DayOfWeek returns the day index with Monday = 0 and Sunday = 6.
func DayOfWeek(ts time.Time) int {
	return (int(ts.Weekday()) + 6) % 7
}

// Row returns the design matrix row for ts: a leading 1.0 bias followed by
// the encoded features.
func Row(ts time.Time) []float64 {
	v := Encode(ts)
	row := make([]float64, Width)
	row[0] = 1.0
	copy(row[1:], v[:])
	return row
}

// Matrix encodes every timestamp in ts into a design matrix row.
func Matrix(ts []time.Time) [][]float64 {
	rows := make([][]float64, len(ts))
	for i, t := range ts {
		rows[i] = Row(t)
	}
	return rows
}
