/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package interval provides the half-open time interval primitives the
// scheduling engine is built on.
package interval

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInterval is returned when an interval does not satisfy start < end.
var ErrInvalidInterval = errors.New("interval: start must be before end")

// Interval is a half-open time span [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New validates and constructs an Interval.
func New(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: start=%s end=%s", ErrInvalidInterval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{Start: start, End: end}, nil
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching endpoints do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// OverlapsWithGap widens other by gap on both ends before comparing, so a
// booking that ends less than gap before iv starts (or starts less than gap
// after iv ends) still counts as overlapping. A zero or negative gap is a
// plain Overlaps check.
func (iv Interval) OverlapsWithGap(other Interval, gap time.Duration) bool {
	if gap <= 0 {
		return iv.Overlaps(other)
	}
	widened := Interval{Start: other.Start.Add(-gap), End: other.End.Add(gap)}
	return iv.Overlaps(widened)
}

// Contains reports whether t falls inside the interval. The start instant is
// contained, the end instant is not.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Shift returns the interval translated by d, preserving duration.
func (iv Interval) Shift(d time.Duration) Interval {
	return Interval{Start: iv.Start.Add(d), End: iv.End.Add(d)}
}

func (iv Interval) String() string {
	return iv.Start.Format(time.RFC3339) + "/" + iv.End.Format(time.RFC3339)
}
