package models

import (
	"time"
)

// ResourceKind enumerates the schedulable resource types.
type ResourceKind string

const (
	KindFacility    ResourceKind = "facility"
	KindStall       ResourceKind = "stall"
	KindStaffMember ResourceKind = "staff_member"
	KindPasture     ResourceKind = "pasture"
)

// Valid reports whether k is a known kind.
func (k ResourceKind) Valid() bool {
	switch k {
	case KindFacility, KindStall, KindStaffMember, KindPasture:
		return true
	default:
		return false
	}
}

// AdjacencyPolicy encodes the resource-specific rules applied beyond literal
// interval overlap. MinGap is the turnover time between consecutive bookings
// (stall cleaning, arena reset). MinRestPeriod is the pasture rest rule: a new
// occupancy may not start sooner than this after the previous one ends. Both
// widen the effective interval during conflict checks; the larger one wins.
type AdjacencyPolicy struct {
	MinGap             time.Duration `json:"min_gap,omitempty"`
	MinRestPeriod      time.Duration `json:"min_rest_period,omitempty"`
	AllowDoubleBooking bool          `json:"allow_double_booking,omitempty"`
}

// EffectiveGap returns the widening applied to existing bookings when
// checking a proposed occurrence against them.
func (p AdjacencyPolicy) EffectiveGap() time.Duration {
	if p.MinRestPeriod > p.MinGap {
		return p.MinRestPeriod
	}
	return p.MinGap
}

// Resource is a finite schedulable asset: a stall, a facility, a staff
// member, a pasture. Resource records are owned by the surrounding
// management features; the engine reads them by id and never mutates them
// as part of scheduling.
type Resource struct {
	ID              string          `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string          `gorm:"index" json:"name"`
	Kind            ResourceKind    `gorm:"type:varchar(32);index" json:"kind"`
	AdjacencyPolicy AdjacencyPolicy `gorm:"type:jsonb;serializer:json" json:"adjacency_policy"`
	Notes           string          `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
