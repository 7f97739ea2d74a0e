/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package registry is the persistence layer for resources, series and
// bookings. Every booking query is windowed and ordered by start time
// so conflict reporting stays deterministic.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/paddock/internal/cache"
	"github.com/friendsincode/paddock/internal/events"
	"github.com/friendsincode/paddock/internal/interval"
	"github.com/friendsincode/paddock/internal/models"
)

var (
	// ErrResourceNotFound indicates an unknown resource ID.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrBookingNotFound indicates an unknown booking ID.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrSeriesNotFound indicates an unknown series ID.
	ErrSeriesNotFound = errors.New("series not found")
)

// Registry provides resource and booking persistence.
type Registry struct {
	db     *gorm.DB
	cache  *cache.Cache
	bus    *events.Bus
	logger zerolog.Logger
}

// New creates a registry. cache and bus may be nil when Redis or
// eventing is not configured.
func New(db *gorm.DB, c *cache.Cache, bus *events.Bus, logger zerolog.Logger) *Registry {
	return &Registry{
		db:     db,
		cache:  c,
		bus:    bus,
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// WithTx returns a registry bound to the given transaction. The cache
// and bus are dropped so reads hit the database and events only fire
// for committed work.
func (r *Registry) WithTx(tx *gorm.DB) *Registry {
	return &Registry{db: tx, logger: r.logger}
}

// DB exposes the underlying handle for transaction management.
func (r *Registry) DB() *gorm.DB { return r.db }

// --- resources ---

// CreateResource validates and persists a new resource.
func (r *Registry) CreateResource(ctx context.Context, res *models.Resource) error {
	if !res.Kind.Valid() {
		return fmt.Errorf("invalid resource kind: %s", res.Kind)
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(res).Error; err != nil {
		return fmt.Errorf("creating resource: %w", err)
	}
	return nil
}

// ResourceByID loads a resource, consulting the cache first.
func (r *Registry) ResourceByID(ctx context.Context, id string) (*models.Resource, error) {
	if r.cache != nil {
		if res, ok := r.cache.GetResource(ctx, id); ok {
			return res, nil
		}
	}

	var res models.Resource
	if err := r.db.WithContext(ctx).First(&res, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResourceNotFound
		}
		return nil, fmt.Errorf("loading resource %s: %w", id, err)
	}

	if r.cache != nil {
		if err := r.cache.SetResource(ctx, &res); err != nil {
			r.logger.Debug().Err(err).Str("resource_id", id).Msg("resource cache write failed")
		}
	}
	return &res, nil
}

// ListResources returns all resources, optionally filtered by kind.
func (r *Registry) ListResources(ctx context.Context, kind models.ResourceKind) ([]models.Resource, error) {
	q := r.db.WithContext(ctx).Order("name ASC")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var out []models.Resource
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	return out, nil
}

// UpdateResource persists changes to an existing resource and drops its
// cache entry.
func (r *Registry) UpdateResource(ctx context.Context, res *models.Resource) error {
	if !res.Kind.Valid() {
		return fmt.Errorf("invalid resource kind: %s", res.Kind)
	}
	result := r.db.WithContext(ctx).Model(&models.Resource{}).
		Where("id = ?", res.ID).
		Select("Name", "Kind", "AdjacencyPolicy", "Notes").
		Updates(res)
	if result.Error != nil {
		return fmt.Errorf("updating resource %s: %w", res.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrResourceNotFound
	}
	r.invalidate(ctx, res.ID)
	r.publish(events.EventResourceUpdated, res.ID)
	return nil
}

// DeleteResource removes a resource. Bookings referencing it are left
// in place for history; callers decide whether to cancel them first.
func (r *Registry) DeleteResource(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Resource{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("deleting resource %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrResourceNotFound
	}
	r.invalidate(ctx, id)
	r.publish(events.EventResourceDeleted, id)
	return nil
}

func (r *Registry) invalidate(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateResource(ctx, id); err != nil {
		r.logger.Debug().Err(err).Str("resource_id", id).Msg("resource cache invalidation failed")
	}
}

func (r *Registry) publish(eventType events.EventType, resourceID string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventType, events.Payload{"resource_id": resourceID})
}

// --- bookings ---

// BookingsFor returns the bookings on a resource whose interval
// intersects the window, ordered by start time ascending.
func (r *Registry) BookingsFor(ctx context.Context, resourceID string, window interval.Interval) ([]models.Booking, error) {
	var out []models.Booking
	err := r.db.WithContext(ctx).
		Where("resource_id = ? AND starts_at < ? AND ends_at > ?", resourceID, window.End, window.Start).
		Order("starts_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("querying bookings for resource %s: %w", resourceID, err)
	}
	return out, nil
}

// LiveBookingsFor is BookingsFor restricted to statuses that occupy the
// calendar (proposed and confirmed).
func (r *Registry) LiveBookingsFor(ctx context.Context, resourceID string, window interval.Interval) ([]models.Booking, error) {
	var out []models.Booking
	err := r.db.WithContext(ctx).
		Where("resource_id = ? AND starts_at < ? AND ends_at > ?", resourceID, window.End, window.Start).
		Where("status IN ?", []models.BookingStatus{models.BookingProposed, models.BookingConfirmed}).
		Order("starts_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("querying live bookings for resource %s: %w", resourceID, err)
	}
	return out, nil
}

// BookingByID loads a single booking.
func (r *Registry) BookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("loading booking %s: %w", id, err)
	}
	return &b, nil
}

// ListBookings returns bookings filtered by resource, window and/or
// status, ordered by start time.
func (r *Registry) ListBookings(ctx context.Context, resourceID string, window *interval.Interval, status models.BookingStatus) ([]models.Booking, error) {
	q := r.db.WithContext(ctx).Order("starts_at ASC")
	if resourceID != "" {
		q = q.Where("resource_id = ?", resourceID)
	}
	if window != nil {
		q = q.Where("starts_at < ? AND ends_at > ?", window.End, window.Start)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.Booking
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing bookings: %w", err)
	}
	return out, nil
}

// SaveBooking persists status or interval changes on a booking.
func (r *Registry) SaveBooking(ctx context.Context, b *models.Booking) error {
	if err := r.db.WithContext(ctx).Save(b).Error; err != nil {
		return fmt.Errorf("saving booking %s: %w", b.ID, err)
	}
	return nil
}

// CreateBookings inserts a batch of bookings.
func (r *Registry) CreateBookings(ctx context.Context, bookings []models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&bookings).Error; err != nil {
		return fmt.Errorf("creating bookings: %w", err)
	}
	return nil
}

// --- series ---

// CreateSeries persists a series row.
func (r *Registry) CreateSeries(ctx context.Context, s *models.Series) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("creating series: %w", err)
	}
	return nil
}

// SeriesByID loads a series together with its bookings.
func (r *Registry) SeriesByID(ctx context.Context, id string) (*models.Series, error) {
	var s models.Series
	if err := r.db.WithContext(ctx).Preload("Bookings").First(&s, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSeriesNotFound
		}
		return nil, fmt.Errorf("loading series %s: %w", id, err)
	}
	return &s, nil
}
