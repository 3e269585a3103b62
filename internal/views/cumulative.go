// SPDX-FileCopyrightText: 2024 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package views

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Sample is the number of views that one page received during one
// granularity bucket, such as one hour, starting at Time.
type Sample struct {
	Time  time.Time
	Views int64
}

// ErrInconsistentGrid is wrapped by every GridError.
var ErrInconsistentGrid = errors.New("inconsistent sample grid")

// GridError tells that a sample cannot be placed on the evenly spaced
// grid of its series. This indicates broken data, or a granularity that
// does not match the sample source.
type GridError struct {
	Sample      Sample
	GridStart   time.Time
	Granularity time.Duration
	Reason      string
}

func (e *GridError) Error() string {
	return fmt.Sprintf("%v: sample at %s with %d views, grid starting at %s every %s: %s",
		ErrInconsistentGrid, e.Sample.Time.UTC().Format(time.RFC3339), e.Sample.Views,
		e.GridStart.UTC().Format(time.RFC3339), e.Granularity, e.Reason)
}

func (e *GridError) Unwrap() error {
	return ErrInconsistentGrid
}

// Cumulative is a monotone function from time to the estimated number
// of views since the start of an observed series. It is defined
// on a grid spanning from one granularity unit before the first
// sample until one granularity unit after the last one; in between
// grid points, values get interpolated linearly.
//
// A Cumulative built from zero samples is empty; it evaluates to zero
// everywhere, and its Start and End are the zero time.
type Cumulative struct {
	start       time.Time
	granularity time.Duration
	totals      []int64 // prefix sums, one per grid point
}

// BuildCumulative computes the cumulative views function for the samples
// of one page. The samples do not need to be sorted. A sample whose time
// does not fall on the grid, a duplicate time, or a negative view count
// make the series inconsistent; this is reported as a *GridError.
func BuildCumulative(samples []Sample, granularity time.Duration) (*Cumulative, error) {
	if granularity <= 0 {
		return nil, fmt.Errorf("granularity must be positive, got %s", granularity)
	}

	c := &Cumulative{granularity: granularity}
	if len(samples) == 0 {
		return c, nil
	}

	sorted := slices.Clone(samples)
	slices.SortFunc(sorted, func(a, b Sample) int {
		return a.Time.Compare(b.Time)
	})

	first, last := sorted[0].Time, sorted[len(sorted)-1].Time
	c.start = first.Add(-granularity)
	n := int(last.Sub(first)/granularity) + 3
	views := make([]int64, n)
	for i, s := range sorted {
		offset := s.Time.Sub(c.start)
		if offset%granularity != 0 {
			return nil, &GridError{s, c.start, granularity, "not aligned to grid"}
		}
		if s.Views < 0 {
			return nil, &GridError{s, c.start, granularity, "negative view count"}
		}
		if i > 0 && s.Time.Equal(sorted[i-1].Time) {
			return nil, &GridError{s, c.start, granularity, "duplicate timestamp"}
		}
		views[int(offset/granularity)] = s.Views
	}

	c.totals = views
	var sum int64
	for i, v := range views {
		sum += v
		c.totals[i] = sum
	}
	return c, nil
}

// Empty reports whether the function was built from zero samples.
func (c *Cumulative) Empty() bool {
	return len(c.totals) == 0
}

// Start returns the first grid point, which is one granularity
// unit before the first sample.
func (c *Cumulative) Start() time.Time {
	return c.start
}

// End returns the last grid point, which is one granularity
// unit after the last sample.
func (c *Cumulative) End() time.Time {
	if c.Empty() {
		return time.Time{}
	}
	return c.start.Add(time.Duration(len(c.totals)-1) * c.granularity)
}

func (c *Cumulative) Granularity() time.Duration {
	return c.granularity
}

// Len returns the number of grid points.
func (c *Cumulative) Len() int {
	return len(c.totals)
}

// Total returns the sum of all views in the series.
func (c *Cumulative) Total() int64 {
	if c.Empty() {
		return 0
	}
	return c.totals[len(c.totals)-1]
}

// At returns the estimated number of views from the start of the grid
// until time t. Before the grid, this is zero; after the grid, it stays
// at the total without being extrapolated any further.
func (c *Cumulative) At(t time.Time) float64 {
	if c.Empty() || t.Before(c.start) {
		return 0
	}

	offset := t.Sub(c.start)
	i := int(offset / c.granularity)
	if i >= len(c.totals)-1 {
		return float64(c.totals[len(c.totals)-1])
	}

	lo, hi := float64(c.totals[i]), float64(c.totals[i+1])
	frac := float64(offset%c.granularity) / float64(c.granularity)
	return lo + frac*(hi-lo)
}
