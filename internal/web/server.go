// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/klauspost/compress/gzhttp"

	"github.com/k-t-corp/broccoli-console/internal/observability"
	"github.com/k-t-corp/broccoli-console/internal/pkg/logger"
)

// CORSConfig controls cross-origin access to the JSON endpoints.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	MaxAge           int
}

// ServerConfig holds everything NewServerRouter wires together.
type ServerConfig struct {
	Handler        *Handler
	Table          *RouteTable
	Logger         *logger.Logger
	Tracing        *observability.Provider
	Health         HealthChecker
	CORS           CORSConfig
	Compress       bool // gzip responses for clients that accept it
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	LoginRateLimit int
	LoginWindow    time.Duration
}

// NewServerRouter builds the HTTP handler for the console.
func NewServerRouter(cfg ServerConfig) chi.Router {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	table := cfg.Table
	if table == nil {
		table = ConsoleRoutes(cfg.Handler)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(RecoverPanic(log))
	if cfg.Tracing != nil {
		r.Use(cfg.Tracing.TraceMiddleware())
	}
	r.Use(SecureHeaders)
	if cfg.Compress {
		r.Use(Compress)
	}
	r.Use(MaxRequestBody(cfg.MaxBodyBytes))
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	// JSON endpoints
	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		}))
		r.Get("/shell", cfg.Handler.ShellAPI)
	})

	RegisterFrontendRoutes(r, cfg.Handler, table, FrontendConfig{
		LoginRateLimit:  cfg.LoginRateLimit,
		LoginRateWindow: cfg.LoginWindow,
		Health:          cfg.Health,
	})
	return r
}

// Compress gzips responses large enough to benefit.
func Compress(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
