/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package conflict decides whether candidate intervals can coexist with
// the bookings already committed on a resource. A candidate conflicts
// when it overlaps a live booking, where "overlap" is widened by the
// resource's adjacency policy (minimum gap / rest period). Completed
// and cancelled bookings never block anything.
package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/paddock/internal/interval"
	"github.com/friendsincode/paddock/internal/models"
	"github.com/friendsincode/paddock/internal/registry"
)

// Conflict describes one rejected candidate interval. WithBookingID is
// always the earliest-starting live booking that blocks the candidate,
// so repeated checks over the same state report the same culprit. When
// two occurrences of the same request collide with each other, nothing
// has been committed yet, so WithBookingID is empty and WithInterval
// names the earlier occurrence.
type Conflict struct {
	ResourceID    string            `json:"resource_id"`
	Requested     interval.Interval `json:"requested"`
	SequenceIndex int               `json:"sequence_index"`
	WithBookingID string            `json:"with_booking_id,omitempty"`
	WithInterval  interval.Interval `json:"with_interval"`
	Gap           time.Duration     `json:"gap,omitempty"`
}

func (c Conflict) String() string {
	if c.WithBookingID == "" {
		return fmt.Sprintf("%s conflicts with occurrence %s of the same request", c.Requested, c.WithInterval)
	}
	return fmt.Sprintf("%s conflicts with booking %s (%s)", c.Requested, c.WithBookingID, c.WithInterval)
}

// Options narrows which existing bookings count during a check. Both
// exclusions exist for reschedules: a booking never conflicts with
// itself, and a replacement series ignores the series it replaces.
type Options struct {
	ExcludeBookingID string
	ExcludeSeriesID  string
}

// Detector checks candidate intervals against committed bookings.
type Detector struct {
	reg    *registry.Registry
	logger zerolog.Logger
}

// NewDetector builds a detector over the given registry.
func NewDetector(reg *registry.Registry, logger zerolog.Logger) *Detector {
	return &Detector{
		reg:    reg,
		logger: logger.With().Str("component", "conflict").Logger(),
	}
}

// WithRegistry returns a detector reading through a different registry,
// typically one bound to an open transaction.
func (d *Detector) WithRegistry(reg *registry.Registry) *Detector {
	return &Detector{reg: reg, logger: d.logger}
}

// Check tests one candidate interval against the resource's live
// bookings. It returns the conflict with the earliest-starting blocker,
// or nil when the candidate is clear.
func (d *Detector) Check(ctx context.Context, res *models.Resource, candidate interval.Interval, opts Options) (*Conflict, error) {
	if res.AdjacencyPolicy.AllowDoubleBooking {
		return nil, nil
	}

	gap := res.AdjacencyPolicy.EffectiveGap()

	// Widen the query window by the gap so bookings that only conflict
	// through the adjacency policy are fetched too.
	window := interval.Interval{
		Start: candidate.Start.Add(-gap),
		End:   candidate.End.Add(gap),
	}
	existing, err := d.reg.LiveBookingsFor(ctx, res.ID, window)
	if err != nil {
		return nil, fmt.Errorf("loading bookings for conflict check: %w", err)
	}

	for _, b := range existing {
		if opts.ExcludeBookingID != "" && b.ID == opts.ExcludeBookingID {
			continue
		}
		if opts.ExcludeSeriesID != "" && b.SeriesID != nil && *b.SeriesID == opts.ExcludeSeriesID {
			continue
		}
		if candidate.OverlapsWithGap(b.Interval(), gap) {
			// existing is ordered by start time, so the first hit is
			// the earliest-starting blocker.
			return &Conflict{
				ResourceID:    res.ID,
				Requested:     candidate,
				WithBookingID: b.ID,
				WithInterval:  b.Interval(),
				Gap:           gap,
			}, nil
		}
	}
	return nil, nil
}

// CheckSet tests the candidates against each other. A request can
// collide with itself before anything is written: an occurrence longer
// than the recurrence step, or occurrences spaced inside the resource's
// effective gap. Candidates arrive in start order, so the earlier
// occurrence of each colliding pair is reported as the blocker.
func (d *Detector) CheckSet(res *models.Resource, candidates []interval.Interval) []Conflict {
	if res.AdjacencyPolicy.AllowDoubleBooking {
		return nil
	}
	gap := res.AdjacencyPolicy.EffectiveGap()

	var conflicts []Conflict
	for i := 1; i < len(candidates); i++ {
		for j := 0; j < i; j++ {
			if candidates[i].OverlapsWithGap(candidates[j], gap) {
				conflicts = append(conflicts, Conflict{
					ResourceID:    res.ID,
					Requested:     candidates[i],
					SequenceIndex: i,
					WithInterval:  candidates[j],
					Gap:           gap,
				})
				break
			}
		}
	}
	return conflicts
}

// CheckAll tests every candidate and collects every conflict rather
// than stopping at the first, so callers can report the full set of
// problems from a single scheduling attempt.
func (d *Detector) CheckAll(ctx context.Context, res *models.Resource, candidates []interval.Interval, opts Options) ([]Conflict, error) {
	var conflicts []Conflict
	for i, candidate := range candidates {
		c, err := d.Check(ctx, res, candidate, opts)
		if err != nil {
			return nil, err
		}
		if c != nil {
			c.SequenceIndex = i
			conflicts = append(conflicts, *c)
		}
	}
	return conflicts, nil
}
