/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit keeps a persistent trail of scheduling actions by
// subscribing to the event bus. Cancelled bookings keep their rows, so
// together with this trail the full history of every slot is
// reconstructable.
package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/paddock/internal/events"
	"github.com/friendsincode/paddock/internal/models"
)

// Service handles audit logging by subscribing to events and storing
// audit entries.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

var auditedEvents = []events.EventType{
	events.EventBookingCreated,
	events.EventBookingRescheduled,
	events.EventBookingCancelled,
	events.EventBookingCompleted,
	events.EventSeriesReplaced,
}

// Start subscribes to scheduling events and records them until the
// context is cancelled.
func (s *Service) Start(ctx context.Context) {
	subs := make(map[events.EventType]events.Subscriber, len(auditedEvents))
	for _, et := range auditedEvents {
		subs[et] = s.bus.Subscribe(et)
	}
	defer func() {
		for et, sub := range subs {
			s.bus.Unsubscribe(et, sub)
		}
	}()

	s.logger.Info().Msg("audit trail started")

	for et, sub := range subs {
		go func(et events.EventType, sub events.Subscriber) {
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-sub:
					if !ok {
						return
					}
					s.record(ctx, et, payload)
				}
			}
		}(et, sub)
	}

	<-ctx.Done()
	s.logger.Info().Msg("audit trail stopped")
}

func (s *Service) record(ctx context.Context, eventType events.EventType, payload events.Payload) {
	entry := models.AuditEntry{
		ID:    uuid.NewString(),
		Event: string(eventType),
	}
	if id, ok := payload["booking_id"].(string); ok {
		entry.BookingID = id
	}
	if id, ok := payload["resource_id"].(string); ok {
		entry.ResourceID = id
	}
	entry.Detail = payload

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error().Err(err).Str("event", string(eventType)).Msg("persisting audit entry")
	}
}

// Recent returns the newest entries, optionally filtered by resource.
func (s *Service) Recent(ctx context.Context, resourceID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if resourceID != "" {
		q = q.Where("resource_id = ?", resourceID)
	}
	var out []models.AuditEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
