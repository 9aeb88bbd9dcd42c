/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the read-only status API. The control loop owns all
// decisions; this surface only reports them.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_obs/internal/catalog"
	"github.com/friendsincode/muninn_obs/internal/config"
	"github.com/friendsincode/muninn_obs/internal/executor"
	"github.com/friendsincode/muninn_obs/internal/models"
	"github.com/friendsincode/muninn_obs/internal/observatory"
	"github.com/friendsincode/muninn_obs/internal/obslog"
	"github.com/friendsincode/muninn_obs/internal/safety"
	"github.com/friendsincode/muninn_obs/internal/telemetry"
)

// StatusSource is what the API reads from the state machine.
type StatusSource interface {
	State() observatory.State
	Snapshot() safety.Snapshot
}

// Server is the read-only HTTP surface.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	metricsSrv *http.Server

	status  StatusSource
	exec    *executor.Executor
	obsLog  *obslog.Log
	catalog *catalog.Catalog
	db      *gorm.DB
}

// New builds the server and its routes.
func New(cfg *config.Config, status StatusSource, exec *executor.Executor,
	obsLog *obslog.Log, cat *catalog.Catalog, db *gorm.DB, logger zerolog.Logger) *Server {

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	s := &Server{
		cfg:     cfg,
		logger:  logger.With().Str("component", "server").Logger(),
		router:  router,
		status:  status,
		exec:    exec,
		obsLog:  obsLog,
		catalog: cat,
		db:      db,
	}
	s.configureRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.metricsSrv = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           telemetry.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/safety", s.handleSafety)
		r.Get("/observations", s.handleObservations)
		r.Get("/targets", s.handleTargets)
		r.Get("/reports/{night}", s.handleReport)
	})
}

// Start serves the API and metrics listeners until the context ends.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("status API listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		s.logger.Info().Str("addr", s.metricsSrv.Addr).Msg("metrics listening")
		if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown stops both listeners gracefully.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(ctx)
	if merr := s.metricsSrv.Shutdown(ctx); err == nil {
		err = merr
	}
	return err
}

// Router returns the API router, for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.status.Snapshot()
	resp := map[string]any{
		"state": string(s.status.State()),
		"safe":  snap.Safe(),
		"night": s.obsLog.Night(),
	}
	if r, ok := snap.FirstUnsafe(); ok {
		resp["unsafe_check"] = r.CheckName
		resp["unsafe_detail"] = r.Detail
	}
	if obs := s.exec.Current(); obs != nil && !obs.Phase().Terminal() {
		resp["observation"] = map[string]any{
			"id":                obs.ID,
			"target":            obs.Target.Name,
			"phase":             string(obs.Phase()),
			"started_at":        obs.StartedAt,
			"exposures_taken":   obs.ExposuresTaken,
			"exposures_planned": obs.ExposuresPlanned,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSafety(w http.ResponseWriter, _ *http.Request) {
	snap := s.status.Snapshot()
	checks := make([]map[string]any, 0, len(snap.Readings))
	for _, r := range snap.Readings {
		checks = append(checks, map[string]any{
			"name":       r.CheckName,
			"safe":       r.Safe,
			"detail":     r.Detail,
			"checked_at": r.CheckedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"safe":   snap.Safe(),
		"checks": checks,
	})
}

func (s *Server) handleObservations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"night":        s.obsLog.Night(),
		"observations": s.obsLog.Records(),
	})
}

func (s *Server) handleTargets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"targets": s.catalog.Targets(),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusNotFound, "reports_unavailable")
		return
	}
	night := chi.URLParam(r, "night")
	var rep models.NightReport
	err := s.db.WithContext(r.Context()).Where("night = ?", night).First(&rep).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "report_not_found")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("report lookup failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
