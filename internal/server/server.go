/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires configuration, storage, the scheduling engine
// and the HTTP surface into one runnable unit.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/paddock/internal/api"
	"github.com/friendsincode/paddock/internal/audit"
	"github.com/friendsincode/paddock/internal/cache"
	"github.com/friendsincode/paddock/internal/conflict"
	"github.com/friendsincode/paddock/internal/config"
	"github.com/friendsincode/paddock/internal/db"
	"github.com/friendsincode/paddock/internal/eventbus"
	"github.com/friendsincode/paddock/internal/events"
	"github.com/friendsincode/paddock/internal/leadership"
	"github.com/friendsincode/paddock/internal/registry"
	"github.com/friendsincode/paddock/internal/scheduler"
	"github.com/friendsincode/paddock/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db        *gorm.DB
	cache     *cache.Cache
	registry  *registry.Registry
	scheduler *scheduler.Service
	api       *api.API
	audit     *audit.Service
	bus       *events.Bus
	mirror    *eventbus.Mirror
	election  *leadership.Election

	bgCancel context.CancelFunc
}

// New builds a fully wired server. Call Run to serve and Close to
// release resources.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.TracingMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(30 * time.Second))

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
		bus:    events.NewBus(),
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}
	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Metrics get their own listener so the scrape endpoint never
	// shares a port with the public API.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.Handler())
	srv.metricsServer = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           metricsMux,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return srv, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.db = database
	s.deferClose(func() error { return db.Close(database) })

	if err := db.Migrate(database); err != nil {
		return err
	}

	resourceCache, err := cache.New(cache.Config{
		RedisAddr:      s.cfg.RedisAddr,
		RedisPassword:  s.cfg.RedisPassword,
		RedisDB:        s.cfg.RedisDB,
		DisableOnError: true,
	}, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Msg("resource cache unavailable, continuing without it")
	} else {
		s.cache = resourceCache
		s.deferClose(resourceCache.Close)
	}

	s.registry = registry.New(database, s.cache, s.bus, s.logger)
	detector := conflict.NewDetector(s.registry, s.logger)
	s.scheduler = scheduler.New(database, s.registry, detector, s.bus, s.logger)
	s.audit = audit.NewService(database, s.bus, s.logger)
	s.api = api.New(s.registry, s.scheduler, s.audit, s.logger)

	if s.cfg.NATSURL != "" {
		mirror, err := eventbus.NewMirror(s.cfg.NATSURL, s.bus, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("event mirror unavailable, continuing without it")
		} else {
			s.mirror = mirror
			s.deferClose(mirror.Close)
		}
	}

	if s.cfg.LeaderElectionEnabled {
		client := redis.NewClient(&redis.Options{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		})
		s.election = leadership.NewElection(client, s.cfg.InstanceID, s.logger)
		s.deferClose(client.Close)
	}
	return nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`
		if s.election != nil {
			if s.election.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.api.Routes(s.router)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.election != nil {
		s.election.Start(ctx)
	}
	var gate scheduler.LeaderGate
	if s.election != nil {
		gate = s.election
	}
	go s.scheduler.Run(ctx, s.cfg.SweepInterval, gate)

	if s.mirror != nil {
		s.mirror.Start(ctx,
			events.EventBookingCreated,
			events.EventBookingCancelled,
			events.EventBookingRescheduled,
			events.EventBookingCompleted,
			events.EventSeriesReplaced,
		)
	}

	go s.audit.Start(ctx)
	go s.runCacheInvalidationListener(ctx)
}

// runCacheInvalidationListener drops cached resources when another
// component announces a change.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	if s.cache == nil {
		return
	}
	updated := s.bus.Subscribe(events.EventResourceUpdated)
	deleted := s.bus.Subscribe(events.EventResourceDeleted)
	defer s.bus.Unsubscribe(events.EventResourceUpdated, updated)
	defer s.bus.Unsubscribe(events.EventResourceDeleted, deleted)

	invalidate := func(payload events.Payload) {
		id, _ := payload["resource_id"].(string)
		if id == "" {
			return
		}
		if err := s.cache.InvalidateResource(ctx, id); err != nil {
			s.logger.Debug().Err(err).Str("resource_id", id).Msg("cache invalidation failed")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-updated:
			if !ok {
				return
			}
			invalidate(p)
		case p, ok := <-deleted:
			if !ok {
				return
			}
			invalidate(p)
		}
	}
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		s.logger.Info().Str("addr", s.metricsServer.Addr).Msg("metrics server listening")
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("metrics server shutdown")
	}
	return s.httpServer.Shutdown(shutdownCtx)
}

// Scheduler exposes the engine for the standalone sweep command.
func (s *Server) Scheduler() *scheduler.Service { return s.scheduler }

func (s *Server) deferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close stops background workers and releases resources in reverse
// acquisition order.
func (s *Server) Close() error {
	if s.bgCancel != nil {
		s.bgCancel()
	}
	if s.election != nil {
		s.election.Stop()
	}

	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
