/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/paddock/internal/conflict"
	"github.com/friendsincode/paddock/internal/config"
	"github.com/friendsincode/paddock/internal/db"
	"github.com/friendsincode/paddock/internal/logging"
	"github.com/friendsincode/paddock/internal/registry"
	"github.com/friendsincode/paddock/internal/scheduler"
	"github.com/friendsincode/paddock/internal/server"
	"github.com/friendsincode/paddock/internal/telemetry"
	"github.com/friendsincode/paddock/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "paddock",
	Version: version.Version,
	Short:   "Paddock - scheduling and resource conflict engine",
	Long:    "Paddock schedules lessons, stall assignments and staff shifts against shared facilities, detecting conflicts before anything is committed.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Paddock server",
	Long:  "Start the HTTP API server and the background completion sweep",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one completion sweep and exit",
	Long:  "Transition every confirmed booking whose end time has passed to completed, then exit",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Msg("Paddock starting")

	shutdownTracer, err := telemetry.InitTracer(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server error")
	}

	logger.Info().Msg("shutting down gracefully...")
	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Paddock stopped")
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error().Err(err).Msg("closing database")
		}
	}()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	reg := registry.New(database, nil, nil, logger)
	det := conflict.NewDetector(reg, logger)
	svc := scheduler.New(database, reg, det, nil, logger)

	n, err := svc.SweepCompleted(context.Background(), time.Now())
	if err != nil {
		return fmt.Errorf("completion sweep: %w", err)
	}
	logger.Info().Int("completed", n).Msg("sweep finished")
	return nil
}
