/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler commits bookings against resources. All writes go
// through a per-resource lock plus a database transaction, so a
// check-then-commit race between two requests for the same resource
// cannot interleave. A request either commits every occurrence it asked
// for or commits nothing.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/friendsincode/paddock/internal/conflict"
	"github.com/friendsincode/paddock/internal/events"
	"github.com/friendsincode/paddock/internal/interval"
	"github.com/friendsincode/paddock/internal/models"
	"github.com/friendsincode/paddock/internal/recurrence"
	"github.com/friendsincode/paddock/internal/registry"
	"github.com/friendsincode/paddock/internal/telemetry"
)

// Request describes one scheduling attempt: a single slot, or a
// recurring series when Rule is recurring.
type Request struct {
	ResourceID  string          `json:"resource_id"`
	Start       time.Time       `json:"start"`
	End         time.Time       `json:"end"`
	Rule        recurrence.Rule `json:"rule"`
	RequestedBy string          `json:"requested_by"`
}

// Result is the committed outcome of a scheduling attempt. Series is
// nil for single-slot requests.
type Result struct {
	Series   *models.Series   `json:"series,omitempty"`
	Bookings []models.Booking `json:"bookings"`
}

// Service is the scheduling engine.
type Service struct {
	db       *gorm.DB
	reg      *registry.Registry
	detector *conflict.Detector
	bus      *events.Bus
	logger   zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds the scheduling service. bus may be nil in tests.
func New(db *gorm.DB, reg *registry.Registry, detector *conflict.Detector, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		reg:      reg,
		detector: detector,
		bus:      bus,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// resourceLock serializes scheduling on one resource. Locks are never
// released from the map; facilities are a small, stable set.
func (s *Service) resourceLock(resourceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[resourceID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[resourceID] = l
	}
	return l
}

func (s *Service) publish(eventType events.EventType, payload events.Payload) {
	if s.bus != nil {
		s.bus.Publish(eventType, payload)
	}
}

// Schedule commits a request atomically. Every occurrence is checked
// against its own siblings and against existing bookings inside the
// transaction; if any occurrence conflicts, nothing is written and the
// returned *ConflictError lists every conflict found.
func (s *Service) Schedule(ctx context.Context, req Request) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler.Schedule")
	defer span.End()
	telemetry.AddSpanAttributes(ctx, attribute.String("resource_id", req.ResourceID))

	res, err := s.reg.ResourceByID(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}

	anchor, err := interval.New(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	occurrences, err := recurrence.Occurrences(anchor, req.Rule)
	if err != nil {
		return nil, err
	}
	candidates := make([]interval.Interval, len(occurrences))
	for i, occ := range occurrences {
		candidates[i] = occ.Interval
	}

	lock := s.resourceLock(res.ID)
	lock.Lock()
	defer lock.Unlock()

	var result Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txReg := s.reg.WithTx(tx)
		det := s.detector.WithRegistry(txReg)

		conflicts := det.CheckSet(res, candidates)
		existing, err := det.CheckAll(ctx, res, candidates, conflict.Options{})
		if err != nil {
			return err
		}
		conflicts = append(conflicts, existing...)
		if len(conflicts) > 0 {
			return &ConflictError{ResourceID: res.ID, Conflicts: conflicts}
		}

		var seriesID *string
		if req.Rule.IsRecurring() {
			series := &models.Series{
				ResourceID:  res.ID,
				Rule:        req.Rule,
				AnchorStart: req.Start,
				AnchorEnd:   req.End,
				RequestedBy: req.RequestedBy,
			}
			if err := txReg.CreateSeries(ctx, series); err != nil {
				return err
			}
			seriesID = &series.ID
			result.Series = series
		}

		bookings := make([]models.Booking, len(candidates))
		for i, c := range candidates {
			bookings[i] = models.Booking{
				ID:            uuid.NewString(),
				SeriesID:      seriesID,
				ResourceID:    res.ID,
				SequenceIndex: i,
				StartsAt:      c.Start,
				EndsAt:        c.End,
				RequestedBy:   req.RequestedBy,
				Status:        models.BookingProposed,
			}
			if err := bookings[i].Transition(models.BookingConfirmed); err != nil {
				return err
			}
		}
		if err := txReg.CreateBookings(ctx, bookings); err != nil {
			return err
		}
		result.Bookings = bookings
		return nil
	})
	if err != nil {
		var ce *ConflictError
		if errors.As(err, &ce) {
			telemetry.SchedulingRequestsTotal.WithLabelValues("conflict").Inc()
			telemetry.ConflictsDetectedTotal.Add(float64(len(ce.Conflicts)))
			s.logger.Info().
				Str("resource_id", res.ID).
				Int("conflicts", len(ce.Conflicts)).
				Msg("scheduling request rejected")
			return nil, err
		}
		telemetry.SchedulingRequestsTotal.WithLabelValues("error").Inc()
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("committing schedule: %w", err)
	}

	telemetry.SchedulingRequestsTotal.WithLabelValues("committed").Inc()
	telemetry.BookingsScheduledTotal.Add(float64(len(result.Bookings)))
	s.logger.Info().
		Str("resource_id", res.ID).
		Int("bookings", len(result.Bookings)).
		Bool("recurring", result.Series != nil).
		Msg("schedule committed")

	for _, b := range result.Bookings {
		s.publish(events.EventBookingCreated, events.Payload{
			"booking_id":  b.ID,
			"resource_id": b.ResourceID,
			"starts_at":   b.StartsAt,
		})
	}
	return &result, nil
}

// RescheduleBooking moves one booking to a new interval. Moving a
// series member detaches it from its series; the siblings stay put.
// The booking never conflicts with itself at its old position.
func (s *Service) RescheduleBooking(ctx context.Context, bookingID string, newStart, newEnd time.Time) (*models.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler.RescheduleBooking")
	defer span.End()

	booking, err := s.reg.BookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status.Terminal() {
		return nil, fmt.Errorf("%w: booking %s is %s", ErrNotReschedulable, booking.ID, booking.Status)
	}
	candidate, err := interval.New(newStart, newEnd)
	if err != nil {
		return nil, err
	}
	res, err := s.reg.ResourceByID(ctx, booking.ResourceID)
	if err != nil {
		return nil, err
	}

	lock := s.resourceLock(res.ID)
	lock.Lock()
	defer lock.Unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txReg := s.reg.WithTx(tx)
		det := s.detector.WithRegistry(txReg)

		c, err := det.Check(ctx, res, candidate, conflict.Options{ExcludeBookingID: booking.ID})
		if err != nil {
			return err
		}
		if c != nil {
			return &ConflictError{ResourceID: res.ID, Conflicts: []conflict.Conflict{*c}}
		}

		booking.SeriesID = nil
		booking.StartsAt = candidate.Start
		booking.EndsAt = candidate.End
		return txReg.SaveBooking(ctx, booking)
	})
	if err != nil {
		var ce *ConflictError
		if errors.As(err, &ce) {
			telemetry.ConflictsDetectedTotal.Inc()
			return nil, err
		}
		return nil, fmt.Errorf("rescheduling booking %s: %w", bookingID, err)
	}

	s.logger.Info().Str("booking_id", booking.ID).Msg("booking rescheduled")
	s.publish(events.EventBookingRescheduled, events.Payload{
		"booking_id":  booking.ID,
		"resource_id": booking.ResourceID,
		"starts_at":   booking.StartsAt,
	})
	return booking, nil
}

// RescheduleSeries replaces every remaining live booking of a series
// with a freshly expanded set from a new anchor and rule. The new set
// is checked with the old series excluded, so the replacement can
// reuse its own slots. On success the old live bookings are cancelled
// in the same transaction that commits the new ones.
func (s *Service) RescheduleSeries(ctx context.Context, seriesID string, req Request) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler.RescheduleSeries")
	defer span.End()

	old, err := s.reg.SeriesByID(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if req.ResourceID == "" {
		req.ResourceID = old.ResourceID
	}
	res, err := s.reg.ResourceByID(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}

	anchor, err := interval.New(req.Start, req.End)
	if err != nil {
		return nil, err
	}
	occurrences, err := recurrence.Occurrences(anchor, req.Rule)
	if err != nil {
		return nil, err
	}
	candidates := make([]interval.Interval, len(occurrences))
	for i, occ := range occurrences {
		candidates[i] = occ.Interval
	}

	lock := s.resourceLock(res.ID)
	lock.Lock()
	defer lock.Unlock()

	var result Result
	var cancelled []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txReg := s.reg.WithTx(tx)
		det := s.detector.WithRegistry(txReg)

		conflicts := det.CheckSet(res, candidates)
		existing, err := det.CheckAll(ctx, res, candidates, conflict.Options{ExcludeSeriesID: old.ID})
		if err != nil {
			return err
		}
		conflicts = append(conflicts, existing...)
		if len(conflicts) > 0 {
			return &ConflictError{ResourceID: res.ID, Conflicts: conflicts}
		}

		series := &models.Series{
			ResourceID:  res.ID,
			Rule:        req.Rule,
			AnchorStart: req.Start,
			AnchorEnd:   req.End,
			RequestedBy: req.RequestedBy,
		}
		if err := txReg.CreateSeries(ctx, series); err != nil {
			return err
		}
		result.Series = series

		bookings := make([]models.Booking, len(candidates))
		for i, c := range candidates {
			bookings[i] = models.Booking{
				ID:            uuid.NewString(),
				SeriesID:      &series.ID,
				ResourceID:    res.ID,
				SequenceIndex: i,
				StartsAt:      c.Start,
				EndsAt:        c.End,
				RequestedBy:   req.RequestedBy,
				Status:        models.BookingConfirmed,
			}
		}
		if err := txReg.CreateBookings(ctx, bookings); err != nil {
			return err
		}
		result.Bookings = bookings

		for i := range old.Bookings {
			b := &old.Bookings[i]
			if !b.Status.Live() {
				continue
			}
			if err := b.Transition(models.BookingCancelled); err != nil {
				return err
			}
			if err := txReg.SaveBooking(ctx, b); err != nil {
				return err
			}
			cancelled = append(cancelled, b.ID)
		}
		return nil
	})
	if err != nil {
		var ce *ConflictError
		if errors.As(err, &ce) {
			telemetry.ConflictsDetectedTotal.Add(float64(len(ce.Conflicts)))
			return nil, err
		}
		return nil, fmt.Errorf("rescheduling series %s: %w", seriesID, err)
	}

	s.logger.Info().
		Str("old_series_id", old.ID).
		Str("new_series_id", result.Series.ID).
		Int("cancelled", len(cancelled)).
		Int("created", len(result.Bookings)).
		Msg("series replaced")
	s.publish(events.EventSeriesReplaced, events.Payload{
		"old_series_id": old.ID,
		"new_series_id": result.Series.ID,
	})
	for _, id := range cancelled {
		s.publish(events.EventBookingCancelled, events.Payload{
			"booking_id":  id,
			"resource_id": res.ID,
			"series_id":   old.ID,
		})
	}
	for _, b := range result.Bookings {
		s.publish(events.EventBookingCreated, events.Payload{
			"booking_id":  b.ID,
			"resource_id": b.ResourceID,
			"starts_at":   b.StartsAt,
		})
	}
	return &result, nil
}

// Cancel flips a booking to cancelled. The row is kept, so the
// history of who held the slot survives; the slot itself frees up
// immediately.
func (s *Service) Cancel(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.reg.BookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := booking.Transition(models.BookingCancelled); err != nil {
		return nil, err
	}
	if err := s.reg.SaveBooking(ctx, booking); err != nil {
		return nil, err
	}

	s.logger.Info().Str("booking_id", booking.ID).Msg("booking cancelled")
	s.publish(events.EventBookingCancelled, events.Payload{
		"booking_id":  booking.ID,
		"resource_id": booking.ResourceID,
	})
	return booking, nil
}

// Availability returns the free sub-intervals of the window on a
// resource, with live bookings carved out. Adjacency gaps are not
// applied here; callers see raw free time and the conflict check still
// owns the final say.
func (s *Service) Availability(ctx context.Context, resourceID string, window interval.Interval) ([]interval.Interval, error) {
	if _, err := s.reg.ResourceByID(ctx, resourceID); err != nil {
		return nil, err
	}
	busy, err := s.reg.LiveBookingsFor(ctx, resourceID, window)
	if err != nil {
		return nil, err
	}

	// Clamp bookings to the window and merge overlaps.
	type span struct{ start, end time.Time }
	spans := make([]span, 0, len(busy))
	for _, b := range busy {
		sp := span{start: b.StartsAt, end: b.EndsAt}
		if sp.start.Before(window.Start) {
			sp.start = window.Start
		}
		if sp.end.After(window.End) {
			sp.end = window.End
		}
		spans = append(spans, sp)
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })

	free := make([]interval.Interval, 0)
	cursor := window.Start
	for _, sp := range spans {
		if sp.start.After(cursor) {
			free = append(free, interval.Interval{Start: cursor, End: sp.start})
		}
		if sp.end.After(cursor) {
			cursor = sp.end
		}
	}
	if cursor.Before(window.End) {
		free = append(free, interval.Interval{Start: cursor, End: window.End})
	}
	return free, nil
}
