/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditEntry records one scheduling action for the history trail.
type AuditEntry struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	Event      string         `gorm:"index" json:"event"`
	BookingID  string         `gorm:"index" json:"booking_id,omitempty"`
	ResourceID string         `gorm:"index" json:"resource_id,omitempty"`
	Detail     map[string]any `gorm:"type:jsonb;serializer:json" json:"detail,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
