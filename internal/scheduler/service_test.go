/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/paddock/internal/conflict"
	"github.com/friendsincode/paddock/internal/events"
	"github.com/friendsincode/paddock/internal/interval"
	"github.com/friendsincode/paddock/internal/models"
	"github.com/friendsincode/paddock/internal/recurrence"
	"github.com/friendsincode/paddock/internal/registry"
)

func newTestService(t *testing.T) (*Service, *registry.Registry) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := db.AutoMigrate(&models.Resource{}, &models.Series{}, &models.Booking{}); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	reg := registry.New(db, nil, nil, zerolog.Nop())
	det := conflict.NewDetector(reg, zerolog.Nop())
	return New(db, reg, det, events.NewBus(), zerolog.Nop()), reg
}

func makeResource(t *testing.T, reg *registry.Registry, kind models.ResourceKind, policy models.AdjacencyPolicy) *models.Resource {
	t.Helper()
	res := &models.Resource{Name: string(kind) + "-under-test", Kind: kind, AdjacencyPolicy: policy}
	if err := reg.CreateResource(context.Background(), res); err != nil {
		t.Fatalf("creating resource: %v", err)
	}
	return res
}

func countBookings(t *testing.T, reg *registry.Registry, resourceID string) int {
	t.Helper()
	all, err := reg.ListBookings(context.Background(), resourceID, nil, "")
	if err != nil {
		t.Fatalf("listing bookings: %v", err)
	}
	return len(all)
}

// Single slot on an empty facility commits a confirmed booking and the
// slot disappears from availability.
func TestScheduleSingleSlot(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{})

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	result, err := s.Schedule(ctx, Request{
		ResourceID:  res.ID,
		Start:       start,
		End:         start.Add(time.Hour),
		RequestedBy: "sam",
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if result.Series != nil {
		t.Error("single-slot request should not create a series")
	}
	if len(result.Bookings) != 1 {
		t.Fatalf("got %d bookings, want 1", len(result.Bookings))
	}
	if result.Bookings[0].Status != models.BookingConfirmed {
		t.Errorf("status = %s, want confirmed", result.Bookings[0].Status)
	}

	window, _ := interval.New(start.Add(-time.Hour), start.Add(2*time.Hour))
	free, err := s.Availability(ctx, res.ID, window)
	if err != nil {
		t.Fatalf("Availability() error = %v", err)
	}
	want := []interval.Interval{
		{Start: start.Add(-time.Hour), End: start},
		{Start: start.Add(time.Hour), End: start.Add(2 * time.Hour)},
	}
	if len(free) != len(want) {
		t.Fatalf("got %d free intervals, want %d: %v", len(free), len(want), free)
	}
	for i := range want {
		if !free[i].Start.Equal(want[i].Start) || !free[i].End.Equal(want[i].End) {
			t.Errorf("free[%d] = %v, want %v", i, free[i], want[i])
		}
	}
}

// An overlapping request is rejected with one conflict naming the
// existing booking, and nothing is written.
func TestScheduleOverlapRejected(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{})

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	first, err := s.Schedule(ctx, Request{ResourceID: res.ID, Start: start, End: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	_, err = s.Schedule(ctx, Request{ResourceID: res.ID, Start: start.Add(30 * time.Minute), End: start.Add(90 * time.Minute)})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Schedule() error = %v, want *ConflictError", err)
	}
	if len(ce.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(ce.Conflicts))
	}
	if ce.Conflicts[0].WithBookingID != first.Bookings[0].ID {
		t.Errorf("conflict references %s, want %s", ce.Conflicts[0].WithBookingID, first.Bookings[0].ID)
	}
	if n := countBookings(t, reg, res.ID); n != 1 {
		t.Errorf("%d bookings persisted, want 1", n)
	}
}

// A weekly series with one blocked occurrence commits nothing and the
// error names exactly that occurrence.
func TestScheduleSeriesAllOrNothing(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	stall := makeResource(t, reg, models.KindStall, models.AdjacencyPolicy{})

	// Block the third Tuesday up front.
	blocked := time.Date(2024, 6, 18, 9, 0, 0, 0, time.UTC)
	if _, err := s.Schedule(ctx, Request{ResourceID: stall.ID, Start: blocked, End: blocked.Add(time.Hour)}); err != nil {
		t.Fatalf("seeding blocker: %v", err)
	}

	count := 4
	_, err := s.Schedule(ctx, Request{
		ResourceID: stall.ID,
		Start:      time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 6, 4, 10, 0, 0, 0, time.UTC),
		Rule: recurrence.Rule{
			Freq:       recurrence.FreqWeekly,
			DaysOfWeek: []time.Weekday{time.Tuesday},
			Count:      &count,
		},
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Schedule() error = %v, want *ConflictError", err)
	}
	if len(ce.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(ce.Conflicts))
	}
	if !ce.Conflicts[0].Requested.Start.Equal(blocked) {
		t.Errorf("conflicting occurrence starts %v, want %v", ce.Conflicts[0].Requested.Start, blocked)
	}
	if ce.Conflicts[0].SequenceIndex != 2 {
		t.Errorf("conflict sequence index = %d, want 2", ce.Conflicts[0].SequenceIndex)
	}

	// Only the seeded blocker exists; the other three Tuesdays were
	// not committed.
	if n := countBookings(t, reg, stall.ID); n != 1 {
		t.Errorf("%d bookings persisted, want 1", n)
	}
}

func TestScheduleSeriesCommitsAllOccurrences(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindPasture, models.AdjacencyPolicy{})

	count := 5
	result, err := s.Schedule(ctx, Request{
		ResourceID: res.ID,
		Start:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Rule:       recurrence.Rule{Freq: recurrence.FreqDaily, Count: &count},
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if result.Series == nil {
		t.Fatal("recurring request should create a series")
	}
	if len(result.Bookings) != 5 {
		t.Fatalf("got %d bookings, want 5", len(result.Bookings))
	}
	for i, b := range result.Bookings {
		if b.SeriesID == nil || *b.SeriesID != result.Series.ID {
			t.Errorf("booking %d not linked to series", i)
		}
		if b.SequenceIndex != i {
			t.Errorf("booking %d sequence index = %d", i, b.SequenceIndex)
		}
	}
}

func TestScheduleEnforcesRestPeriod(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	groom := makeResource(t, reg, models.KindStaffMember, models.AdjacencyPolicy{MinRestPeriod: time.Hour})

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	if _, err := s.Schedule(ctx, Request{ResourceID: groom.ID, Start: start, End: start.Add(4 * time.Hour)}); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	// 30 minutes after the shift ends: inside the rest period.
	_, err := s.Schedule(ctx, Request{ResourceID: groom.ID, Start: start.Add(270 * time.Minute), End: start.Add(330 * time.Minute)})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Schedule() error = %v, want *ConflictError", err)
	}

	// A full hour after: clear.
	if _, err := s.Schedule(ctx, Request{ResourceID: groom.ID, Start: start.Add(5 * time.Hour), End: start.Add(6 * time.Hour)}); err != nil {
		t.Errorf("Schedule() after rest period error = %v", err)
	}
}

func TestScheduleUnknownResource(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.Schedule(context.Background(), Request{
		ResourceID: "00000000-0000-0000-0000-000000000000",
		Start:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, registry.ErrResourceNotFound) {
		t.Errorf("Schedule() error = %v, want ErrResourceNotFound", err)
	}
}

// Moving one occurrence of a series detaches it; siblings keep their
// series membership and times.
func TestRescheduleBookingDetachesFromSeries(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{})

	count := 4
	result, err := s.Schedule(ctx, Request{
		ResourceID: res.ID,
		Start:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Rule:       recurrence.Rule{Freq: recurrence.FreqDaily, Count: &count},
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	moved := result.Bookings[1]
	newStart := time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)
	got, err := s.RescheduleBooking(ctx, moved.ID, newStart, newStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("RescheduleBooking() error = %v", err)
	}
	if got.SeriesID != nil {
		t.Error("rescheduled booking should be detached from its series")
	}
	if !got.StartsAt.Equal(newStart) {
		t.Errorf("StartsAt = %v, want %v", got.StartsAt, newStart)
	}

	series, err := reg.SeriesByID(ctx, result.Series.ID)
	if err != nil {
		t.Fatalf("SeriesByID() error = %v", err)
	}
	if len(series.Bookings) != 3 {
		t.Errorf("series retains %d bookings, want 3", len(series.Bookings))
	}
	for _, b := range series.Bookings {
		if b.ID == moved.ID {
			t.Error("moved booking still attached to series")
		}
		if b.Status != models.BookingConfirmed {
			t.Errorf("sibling %s status = %s, want confirmed", b.ID, b.Status)
		}
	}
}

func TestRescheduleBookingIntoOwnSlot(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{})

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	result, err := s.Schedule(ctx, Request{ResourceID: res.ID, Start: start, End: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	// Shift by 15 minutes, overlapping its own old position.
	_, err = s.RescheduleBooking(ctx, result.Bookings[0].ID, start.Add(15*time.Minute), start.Add(75*time.Minute))
	if err != nil {
		t.Errorf("RescheduleBooking() into own slot error = %v", err)
	}
}

func TestRescheduleBookingConflictRejected(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{})

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	a, err := s.Schedule(ctx, Request{ResourceID: res.ID, Start: start, End: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	b, err := s.Schedule(ctx, Request{ResourceID: res.ID, Start: start.Add(2 * time.Hour), End: start.Add(3 * time.Hour)})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	_, err = s.RescheduleBooking(ctx, b.Bookings[0].ID, start.Add(30*time.Minute), start.Add(90*time.Minute))
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("RescheduleBooking() error = %v, want *ConflictError", err)
	}
	if ce.Conflicts[0].WithBookingID != a.Bookings[0].ID {
		t.Errorf("conflict references %s, want %s", ce.Conflicts[0].WithBookingID, a.Bookings[0].ID)
	}

	// The rejected move left the booking untouched.
	unchanged, err := reg.BookingByID(ctx, b.Bookings[0].ID)
	if err != nil {
		t.Fatalf("BookingByID() error = %v", err)
	}
	if !unchanged.StartsAt.Equal(start.Add(2 * time.Hour)) {
		t.Errorf("booking moved despite conflict: %v", unchanged.StartsAt)
	}
}

func TestRescheduleTerminalBookingRejected(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{})

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	result, err := s.Schedule(ctx, Request{ResourceID: res.ID, Start: start, End: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if _, err := s.Cancel(ctx, result.Bookings[0].ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	_, err = s.RescheduleBooking(ctx, result.Bookings[0].ID, start.Add(time.Hour), start.Add(2*time.Hour))
	if !errors.Is(err, ErrNotReschedulable) {
		t.Errorf("RescheduleBooking() error = %v, want ErrNotReschedulable", err)
	}
}

// Replacing a whole series cancels the old live bookings and commits
// the new set in one step; the new set may reuse the old slots.
func TestRescheduleSeries(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{})

	count := 3
	old, err := s.Schedule(ctx, Request{
		ResourceID: res.ID,
		Start:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Rule:       recurrence.Rule{Freq: recurrence.FreqDaily, Count: &count},
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	// Same days, shifted 30 minutes: overlaps the old series, which
	// must not block its own replacement.
	replacement, err := s.RescheduleSeries(ctx, old.Series.ID, Request{
		Start: time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
		Rule:  recurrence.Rule{Freq: recurrence.FreqDaily, Count: &count},
	})
	if err != nil {
		t.Fatalf("RescheduleSeries() error = %v", err)
	}
	if len(replacement.Bookings) != 3 {
		t.Fatalf("got %d new bookings, want 3", len(replacement.Bookings))
	}

	oldSeries, err := reg.SeriesByID(ctx, old.Series.ID)
	if err != nil {
		t.Fatalf("SeriesByID() error = %v", err)
	}
	for _, b := range oldSeries.Bookings {
		if b.Status != models.BookingCancelled {
			t.Errorf("old booking %s status = %s, want cancelled", b.ID, b.Status)
		}
	}
}

func TestRescheduleSeriesConflictLeavesOldSeriesLive(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{})

	count := 2
	old, err := s.Schedule(ctx, Request{
		ResourceID: res.ID,
		Start:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Rule:       recurrence.Rule{Freq: recurrence.FreqDaily, Count: &count},
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	// An unrelated booking occupying the target slot.
	blocker := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	if _, err := s.Schedule(ctx, Request{ResourceID: res.ID, Start: blocker, End: blocker.Add(time.Hour)}); err != nil {
		t.Fatalf("seeding blocker: %v", err)
	}

	_, err = s.RescheduleSeries(ctx, old.Series.ID, Request{
		Start: blocker,
		End:   blocker.Add(time.Hour),
		Rule:  recurrence.Rule{Freq: recurrence.FreqDaily, Count: &count},
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("RescheduleSeries() error = %v, want *ConflictError", err)
	}

	// Old series untouched by the failed replacement.
	oldSeries, err := reg.SeriesByID(ctx, old.Series.ID)
	if err != nil {
		t.Fatalf("SeriesByID() error = %v", err)
	}
	for _, b := range oldSeries.Bookings {
		if b.Status != models.BookingConfirmed {
			t.Errorf("old booking %s status = %s, want confirmed", b.ID, b.Status)
		}
	}
}

// A series whose occurrences run into each other must fail even on an
// empty calendar: committing it would leave confirmed bookings that
// overlap on the same resource.
func TestScheduleRejectsSelfOverlappingSeries(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{})

	// Daily occurrences of a 30-hour slot.
	count := 3
	_, err := s.Schedule(ctx, Request{
		ResourceID: res.ID,
		Start:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 6, 2, 15, 0, 0, 0, time.UTC),
		Rule:       recurrence.Rule{Freq: recurrence.FreqDaily, Count: &count},
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Schedule() error = %v, want *ConflictError", err)
	}
	if len(ce.Conflicts) != 2 {
		t.Fatalf("got %d conflicts, want 2", len(ce.Conflicts))
	}
	for _, c := range ce.Conflicts {
		if c.WithBookingID != "" {
			t.Errorf("sibling conflict carries booking id %q, want none", c.WithBookingID)
		}
	}
	if n := countBookings(t, reg, res.ID); n != 0 {
		t.Errorf("%d bookings persisted, want 0", n)
	}
}

func TestScheduleRejectsSeriesSpacedInsideRestPeriod(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	pasture := makeResource(t, reg, models.KindPasture, models.AdjacencyPolicy{MinRestPeriod: 25 * time.Hour})

	// Daily one-hour occurrences leave 23 hours between them, inside
	// the pasture's rest period.
	count := 2
	_, err := s.Schedule(ctx, Request{
		ResourceID: pasture.ID,
		Start:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Rule:       recurrence.Rule{Freq: recurrence.FreqDaily, Count: &count},
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Schedule() error = %v, want *ConflictError", err)
	}
	if n := countBookings(t, reg, pasture.ID); n != 0 {
		t.Errorf("%d bookings persisted, want 0", n)
	}
}

func TestRescheduleSeriesRejectsSelfOverlappingReplacement(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{})

	count := 2
	old, err := s.Schedule(ctx, Request{
		ResourceID: res.ID,
		Start:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Rule:       recurrence.Rule{Freq: recurrence.FreqDaily, Count: &count},
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	// Replacement occurrences are 30 hours long and collide with each
	// other regardless of the old series being excluded.
	_, err = s.RescheduleSeries(ctx, old.Series.ID, Request{
		Start: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 2, 15, 0, 0, 0, time.UTC),
		Rule:  recurrence.Rule{Freq: recurrence.FreqDaily, Count: &count},
	})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("RescheduleSeries() error = %v, want *ConflictError", err)
	}

	oldSeries, err := reg.SeriesByID(ctx, old.Series.ID)
	if err != nil {
		t.Fatalf("SeriesByID() error = %v", err)
	}
	for _, b := range oldSeries.Bookings {
		if b.Status != models.BookingConfirmed {
			t.Errorf("old booking %s status = %s, want confirmed", b.ID, b.Status)
		}
	}
}

func TestRescheduleSeriesEmitsBookingLifecycleEvents(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{})

	count := 2
	old, err := s.Schedule(ctx, Request{
		ResourceID: res.ID,
		Start:      time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Rule:       recurrence.Rule{Freq: recurrence.FreqDaily, Count: &count},
	})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	created := s.bus.Subscribe(events.EventBookingCreated)
	cancelled := s.bus.Subscribe(events.EventBookingCancelled)
	defer s.bus.Unsubscribe(events.EventBookingCreated, created)
	defer s.bus.Unsubscribe(events.EventBookingCancelled, cancelled)

	if _, err := s.RescheduleSeries(ctx, old.Series.ID, Request{
		Start: time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC),
		Rule:  recurrence.Rule{Freq: recurrence.FreqDaily, Count: &count},
	}); err != nil {
		t.Fatalf("RescheduleSeries() error = %v", err)
	}

	// Publish is synchronous, so the buffered channels already hold
	// whatever was emitted.
	if n := len(created); n != 2 {
		t.Errorf("%d created events, want 2", n)
	}
	if n := len(cancelled); n != 2 {
		t.Errorf("%d cancelled events, want 2", n)
	}
	p := <-cancelled
	if p["series_id"] != old.Series.ID {
		t.Errorf("cancelled event series_id = %v, want %s", p["series_id"], old.Series.ID)
	}
}

func TestCancelFreesSlotAndKeepsHistory(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{})

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	result, err := s.Schedule(ctx, Request{ResourceID: res.ID, Start: start, End: start.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	cancelled, err := s.Cancel(ctx, result.Bookings[0].ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != models.BookingCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	// Slot is free again.
	if _, err := s.Schedule(ctx, Request{ResourceID: res.ID, Start: start, End: start.Add(time.Hour)}); err != nil {
		t.Errorf("Schedule() into cancelled slot error = %v", err)
	}

	// The cancelled row is retained.
	if n := countBookings(t, reg, res.ID); n != 2 {
		t.Errorf("%d bookings persisted, want 2", n)
	}

	// Cancelling twice is rejected.
	if _, err := s.Cancel(ctx, cancelled.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("second Cancel() error = %v, want ErrInvalidTransition", err)
	}
}

// Two goroutines racing for the same slot: exactly one wins.
func TestScheduleConcurrentRequestsSameSlot(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{})

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	req := Request{ResourceID: res.ID, Start: start, End: start.Add(time.Hour)}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Schedule(ctx, req)
		}(i)
	}
	wg.Wait()

	var conflicts, successes int
	for _, err := range errs {
		var ce *ConflictError
		switch {
		case err == nil:
			successes++
		case errors.As(err, &ce):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Errorf("successes = %d, conflicts = %d; want 1 and 1", successes, conflicts)
	}
	if n := countBookings(t, reg, res.ID); n != 1 {
		t.Errorf("%d bookings persisted, want 1", n)
	}
}

func TestAvailabilityMergesOverlappingBusyTime(t *testing.T) {
	s, reg := newTestService(t)
	ctx := context.Background()
	res := makeResource(t, reg, models.KindFacility, models.AdjacencyPolicy{AllowDoubleBooking: true})

	base := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	// Overlapping bookings, legal because double-booking is allowed.
	if _, err := s.Schedule(ctx, Request{ResourceID: res.ID, Start: base.Add(time.Hour), End: base.Add(3 * time.Hour)}); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	if _, err := s.Schedule(ctx, Request{ResourceID: res.ID, Start: base.Add(2 * time.Hour), End: base.Add(4 * time.Hour)}); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	window, _ := interval.New(base, base.Add(6*time.Hour))
	free, err := s.Availability(ctx, res.ID, window)
	if err != nil {
		t.Fatalf("Availability() error = %v", err)
	}
	want := []interval.Interval{
		{Start: base, End: base.Add(time.Hour)},
		{Start: base.Add(4 * time.Hour), End: base.Add(6 * time.Hour)},
	}
	if len(free) != len(want) {
		t.Fatalf("got %d free intervals, want %d: %v", len(free), len(want), free)
	}
	for i := range want {
		if !free[i].Start.Equal(want[i].Start) || !free[i].End.Equal(want[i].End) {
			t.Errorf("free[%d] = %v, want %v", i, free[i], want[i])
		}
	}
}
