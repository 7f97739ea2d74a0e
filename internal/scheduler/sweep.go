/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/friendsincode/paddock/internal/events"
	"github.com/friendsincode/paddock/internal/models"
	"github.com/friendsincode/paddock/internal/telemetry"
)

// LeaderGate gates the sweep loop in multi-instance deployments.
type LeaderGate interface {
	IsLeader() bool
}

// SweepCompleted transitions every confirmed booking that ended at or
// before now to completed. It is idempotent: bookings already
// completed, cancelled or still running are untouched, so overlapping
// sweeps converge on the same state.
func (s *Service) SweepCompleted(ctx context.Context, now time.Time) (int, error) {
	var due []models.Booking
	err := s.db.WithContext(ctx).
		Where("status = ? AND ends_at <= ?", models.BookingConfirmed, now).
		Order("ends_at ASC").
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("querying bookings due for completion: %w", err)
	}

	completed := 0
	for i := range due {
		b := &due[i]
		if err := b.Transition(models.BookingCompleted); err != nil {
			// Lost a race with a concurrent transition; skip.
			continue
		}
		if err := s.reg.SaveBooking(ctx, b); err != nil {
			return completed, err
		}
		completed++
		s.publish(events.EventBookingCompleted, events.Payload{
			"booking_id":  b.ID,
			"resource_id": b.ResourceID,
		})
	}

	if completed > 0 {
		telemetry.SweepTransitionsTotal.Add(float64(completed))
		s.logger.Info().Int("completed", completed).Msg("completion sweep finished")
	}
	return completed, nil
}

// Run drives the completion sweep on a fixed interval until the
// context is cancelled. When gate is non-nil, only the elected leader
// sweeps; followers idle.
func (s *Service) Run(ctx context.Context, every time.Duration, gate LeaderGate) {
	s.logger.Info().Dur("interval", every).Msg("completion sweep loop started")
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("completion sweep loop stopped")
			return
		case <-ticker.C:
			if gate != nil && !gate.IsLeader() {
				continue
			}
			telemetry.SweepRunsTotal.Inc()
			if _, err := s.SweepCompleted(ctx, s.now()); err != nil {
				s.logger.Error().Err(err).Msg("completion sweep failed")
			}
		}
	}
}
