/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/paddock/internal/interval"
	"github.com/friendsincode/paddock/internal/recurrence"
)

// ErrInvalidTransition is returned for a booking status change the lifecycle
// does not allow, including any transition out of a terminal state.
var ErrInvalidTransition = errors.New("models: invalid booking status transition")

// BookingStatus tracks a booking through its lifecycle.
type BookingStatus string

const (
	BookingProposed  BookingStatus = "proposed"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Terminal reports whether the status accepts no further transitions.
func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// CanTransition reports whether s -> to is a legal lifecycle step.
// Proposed -> Confirmed -> Completed; Proposed|Confirmed -> Cancelled.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	if s.Terminal() {
		return false
	}
	switch to {
	case BookingConfirmed:
		return s == BookingProposed
	case BookingCompleted:
		return s == BookingConfirmed
	case BookingCancelled:
		return s == BookingProposed || s == BookingConfirmed
	default:
		return false
	}
}

// Live reports whether the booking occupies its resource for conflict
// purposes. Completed and cancelled bookings never conflict.
func (s BookingStatus) Live() bool {
	return s == BookingProposed || s == BookingConfirmed
}

// Series groups the bookings generated from one recurrence rule against one
// resource. Detaching a booking ("this occurrence only" edits) clears its
// SeriesID without touching siblings.
type Series struct {
	ID          string          `gorm:"type:uuid;primaryKey" json:"id"`
	ResourceID  string          `gorm:"type:uuid;index" json:"resource_id"`
	Rule        recurrence.Rule `gorm:"type:jsonb;serializer:json" json:"rule"`
	AnchorStart time.Time       `json:"anchor_start"`
	AnchorEnd   time.Time       `json:"anchor_end"`
	RequestedBy string          `json:"requested_by"`
	Bookings    []Booking       `gorm:"foreignKey:SeriesID" json:"bookings,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Anchor returns the series anchor interval.
func (s Series) Anchor() interval.Interval {
	return interval.Interval{Start: s.AnchorStart, End: s.AnchorEnd}
}

// Booking is one committed occurrence of a resource allocation. Bookings are
// only ever created after the conflict detector clears their occurrence, and
// are immutable once Completed or Cancelled. Cancellation flips status and
// keeps the row, so the registry retains a full history.
type Booking struct {
	ID            string        `gorm:"type:uuid;primaryKey" json:"id"`
	SeriesID      *string       `gorm:"type:uuid;index" json:"series_id,omitempty"`
	ResourceID    string        `gorm:"type:uuid;index:idx_bookings_resource_time,priority:1" json:"resource_id"`
	SequenceIndex int           `json:"sequence_index"`
	StartsAt      time.Time     `gorm:"index:idx_bookings_resource_time,priority:2" json:"starts_at"`
	EndsAt        time.Time     `json:"ends_at"`
	RequestedBy   string        `json:"requested_by"`
	Status        BookingStatus `gorm:"type:varchar(16);index" json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Interval returns the booking's time span.
func (b Booking) Interval() interval.Interval {
	return interval.Interval{Start: b.StartsAt, End: b.EndsAt}
}

// Transition applies a lifecycle step in memory, rejecting illegal ones.
// Persisting the change is the caller's job.
func (b *Booking) Transition(to BookingStatus) error {
	if !b.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s (booking %s)", ErrInvalidTransition, b.Status, to, b.ID)
	}
	b.Status = to
	return nil
}
