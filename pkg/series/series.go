// Package series turns raw occupancy observations into a regular time series.
//
// Raw history arrives unordered, possibly with gaps and duplicates. Regularize
// sorts it and reindexes it onto a fixed 5-minute grid spanning the observed
// range. Slots without an observation are filled with label 0: absence of data
// is treated as "free".
package series

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Interval is the sampling step of every regular series.
const Interval = 5 * time.Minute

// MaxSlots bounds the length of a regular series: one year of 5-minute slots.
const MaxSlots = 366 * 24 * 12

// Observation is a single occupancy sample. Label is 1 for occupied, 0 for free.
type Observation struct {
	Timestamp time.Time
	Label     int
}

// Regular is an occupancy series sampled at an exact fixed interval with no
// gaps. It is built by Regularize and must not be modified afterwards.
type Regular struct {
	Start  time.Time
	Step   time.Duration
	Labels []int
}

// Len returns the number of slots in the series.
func (r *Regular) Len() int {
	return len(r.Labels)
}

// At returns the i-th slot of the series.
func (r *Regular) At(i int) Observation {
	return Observation{
		Timestamp: r.Start.Add(time.Duration(i) * r.Step),
		Label:     r.Labels[i],
	}
}

// Timestamps returns the timestamp of every slot, in order.
func (r *Regular) Timestamps() []time.Time {
	ts := make([]time.Time, len(r.Labels))
	for i := range r.Labels {
		ts[i] = r.Start.Add(time.Duration(i) * r.Step)
	}
	return ts
}

// Last returns the timestamp of the final slot.
func (r *Regular) Last() time.Time {
	return r.Start.Add(time.Duration(len(r.Labels)-1) * r.Step)
}

// Occupied returns the number of slots labelled 1.
func (r *Regular) Occupied() int {
	n := 0
	for _, l := range r.Labels {
		n += l
	}
	return n
}

// Fingerprint returns a stable 64-bit hash of the series contents.
// Two series with the same start, step and labels share a fingerprint.
func (r *Regular) Fingerprint() uint64 {
	h := xxhash.New()
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], uint64(r.Start.UnixNano()))
	_, _ = h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(r.Step))
	_, _ = h.Write(buf[:])

	labels := make([]byte, len(r.Labels))
	for i, l := range r.Labels {
		labels[i] = byte(l)
	}
	_, _ = h.Write(labels)

	return h.Sum64()
}

// Regularize sorts obs by timestamp and reindexes it onto a grid starting at
// the earliest timestamp and stepping by Interval up to the latest one.
//
// Duplicate timestamps resolve to the observation that appears last in obs.
// Observations that fall between grid slots match no slot and are dropped;
// the grid ends at the last slot not after the latest timestamp.
//
// Returns *InsufficientDataError for empty input and *MalformedInputError
// when a label is not 0 or 1 or the range needs more than MaxSlots slots.
func Regularize(obs []Observation) (*Regular, error) {
	if len(obs) == 0 {
		return nil, &InsufficientDataError{Have: 0, Need: 1}
	}

	for i, o := range obs {
		if o.Label != 0 && o.Label != 1 {
			return nil, &MalformedInputError{
				Field:  "label",
				Value:  fmt.Sprintf("%d", o.Label),
				Reason: fmt.Sprintf("observation %d: must be 0 or 1", i),
			}
		}
		if o.Timestamp.IsZero() {
			return nil, &MalformedInputError{
				Field:  "timestamp",
				Value:  o.Timestamp.String(),
				Reason: fmt.Sprintf("observation %d: zero time", i),
			}
		}
	}

	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	start := sorted[0].Timestamp
	end := sorted[len(sorted)-1].Timestamp
	// Sub saturates on very long ranges, so compare before dividing
	if end.Sub(start) > time.Duration(MaxSlots-1)*Interval {
		return nil, &MalformedInputError{
			Field:  "time range",
			Value:  start.Format(TimestampLayout) + " to " + end.Format(TimestampLayout),
			Reason: fmt.Sprintf("spans more than %d slots of %s", MaxSlots, Interval),
		}
	}
	slots := int(end.Sub(start)/Interval) + 1

	labels := make([]int, slots)
	for _, o := range sorted {
		offset := o.Timestamp.Sub(start)
		if offset%Interval != 0 {
			continue
		}
		// stable sort keeps input order among equal timestamps, so the
		// later duplicate overwrites the earlier one
		labels[int(offset/Interval)] = o.Label
	}

	return &Regular{
		Start:  start,
		Step:   Interval,
		Labels: labels,
	}, nil
}
