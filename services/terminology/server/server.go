// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the terminology service over HTTP.
//
// Description:
//
//	A JSON REST API built on Gin. Concept lookups, description and
//	preferred-synonym resolution, ranked search and ECL evaluation are
//	served under /v1; /healthz and an optional prometheus /metrics
//	endpoint sit at the root. ECL arrives as a JSON syntax tree (the
//	wire form a parser emits), not as constraint text.
//
// Thread Safety: the Server and its handlers are safe for concurrent
// use; they only read from the underlying service.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	terminology "github.com/AleutianAI/terminology/services/terminology"
)

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// Metrics exposes prometheus metrics on /metrics when true.
	Metrics bool
	// Debug enables gin debug mode and request logging.
	Debug bool
}

// Server wraps a terminology service with an HTTP API.
type Server struct {
	cfg Config
	svc *terminology.Service
	log *slog.Logger
}

// New creates a server over an open terminology service.
func New(cfg Config, svc *terminology.Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, svc: svc, log: log}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	if s.cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if s.cfg.Debug {
		router.Use(gin.Logger())
	}
	router.Use(observeRequests())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.cfg.Metrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	handlers := NewHandlers(s.svc, s.log)
	RegisterRoutes(router.Group("/v1"), handlers)
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("terminology server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info("shutting down terminology server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// RegisterRoutes registers the /v1 terminology routes.
//
// Endpoints:
//
//	GET  /v1/concepts/:id                Concept core record
//	GET  /v1/concepts/:id/descriptions   All descriptions
//	GET  /v1/concepts/:id/preferred      Preferred synonym (Accept-Language)
//	GET  /v1/concepts/:id/fsn            Fully specified name
//	GET  /v1/concepts/:id/extended       Denormalized concept view
//	GET  /v1/concepts/:id/parents        Active outbound relationships
//	GET  /v1/concepts/:id/refsets        Refset memberships
//	GET  /v1/concepts/:id/associations   Historical associations
//	GET  /v1/search                      Ranked description search
//	POST /v1/ecl                         Realize an ECL syntax tree
//	GET  /v1/refsets/:id/reverse-map     Map members by target code
//	GET  /v1/status                      Component counts
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	concepts := rg.Group("/concepts")
	{
		concepts.GET("/:id", handlers.HandleConcept)
		concepts.GET("/:id/descriptions", handlers.HandleDescriptions)
		concepts.GET("/:id/preferred", handlers.HandlePreferred)
		concepts.GET("/:id/fsn", handlers.HandleFSN)
		concepts.GET("/:id/extended", handlers.HandleExtended)
		concepts.GET("/:id/parents", handlers.HandleParents)
		concepts.GET("/:id/refsets", handlers.HandleRefsets)
		concepts.GET("/:id/associations", handlers.HandleAssociations)
	}
	rg.GET("/search", handlers.HandleSearch)
	rg.POST("/ecl", handlers.HandleECL)
	rg.GET("/refsets/:id/reverse-map", handlers.HandleReverseMap)
	rg.GET("/status", handlers.HandleStatus)
}
