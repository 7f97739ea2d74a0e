/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/paddock/internal/models"
)

// Migrate brings the schema up to date.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.Resource{},
		&models.Series{},
		&models.Booking{},
		&models.AuditEntry{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
