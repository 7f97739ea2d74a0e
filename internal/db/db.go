/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/friendsincode/paddock/internal/config"
)

// Connect opens the configured database and applies pool settings.
func Connect(cfg *config.Config, logger zerolog.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
	if cfg.Environment == "development" {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	var (
		conn *gorm.DB
		err  error
	)
	switch cfg.DBBackend {
	case config.DatabasePostgres:
		conn, err = gorm.Open(postgres.Open(cfg.DBDSN), gormConfig)
	case config.DatabaseMySQL:
		conn, err = gorm.Open(mysql.Open(cfg.DBDSN), gormConfig)
	case config.DatabaseSQLite:
		conn, err = gorm.Open(sqlite.Open(cfg.DBDSN), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database backend: %s", cfg.DBBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.DBBackend, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("obtaining sql.DB handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logger.Info().
		Str("backend", string(cfg.DBBackend)).
		Msg("database connection established")

	return conn, nil
}

// Close releases the underlying connection pool.
func Close(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
