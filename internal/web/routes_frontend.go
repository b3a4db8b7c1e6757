// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// ConsoleRoutes is the console's route table. The root redirect comes first
// so no page can claim "/".
func ConsoleRoutes(h *Handler) *RouteTable {
	m := h.Middleware()
	message, routing, auth := m.WithMessage(), m.WithRouting(), m.WithAuth()

	return MustRouteTable(
		RedirectEntry{From: "/", To: HomePath, Exact: true},
		RouteEntry{
			Pattern:   "/modViews/view",
			Exact:     true,
			Page:      http.HandlerFunc(h.ModViewsPage),
			Enhancers: []Enhancer{message, routing, auth},
		},
		RouteEntry{
			Pattern:   "/modView/:name",
			Exact:     true,
			Page:      http.HandlerFunc(h.ModViewPage),
			Enhancers: []Enhancer{message, auth},
		},
		RouteEntry{
			Pattern:   "/workers/view",
			Exact:     true,
			Page:      http.HandlerFunc(h.WorkersPage),
			Enhancers: []Enhancer{message, routing, auth},
		},
		RouteEntry{
			Pattern:   "/workers/create",
			Exact:     true,
			Page:      http.HandlerFunc(h.CreateWorkerPage),
			Enhancers: []Enhancer{message, routing, auth},
		},
		RouteEntry{
			Pattern:   "/worker/:workerId",
			Exact:     true,
			Page:      http.HandlerFunc(h.WorkerPage),
			Enhancers: []Enhancer{message, auth},
		},
		RouteEntry{
			Pattern:   "/jobs/view",
			Exact:     true,
			Page:      http.HandlerFunc(h.JobsPage),
			Enhancers: []Enhancer{auth},
		},
	)
}

// FrontendConfig tunes the fixed console endpoints.
type FrontendConfig struct {
	LoginRateLimit  int
	LoginRateWindow time.Duration
	Health          HealthChecker
}

// RegisterFrontendRoutes registers the fixed endpoints and hands every other
// path to the route table.
func RegisterFrontendRoutes(r chi.Router, h *Handler, table *RouteTable, cfg FrontendConfig) {
	auth := h.Middleware().WithAuth()

	// Public routes
	r.Get("/health", h.HealthCheck(cfg.Health))
	r.Group(func(r chi.Router) {
		r.Use(NoCache)
		r.Get(LoginPath, h.LoginPage)
		r.With(LoginRateLimit(cfg.LoginRateLimit, cfg.LoginRateWindow)).Post(LoginPath, h.LoginSubmit)
		r.Post(LogoutPath, h.Logout)
	})

	// Form actions. Pages reached by GET live in the route table.
	r.Group(func(r chi.Router) {
		r.Use(auth.Wrap)
		r.Post("/modView/{name}/callback", h.ModViewCallback)
		r.Post("/worker/{workerId}/remove", h.WorkerRemove)
		r.Post("/worker/{workerId}/intervalSeconds", h.WorkerUpdateInterval)
		r.Post("/worker/{workerId}/errorResiliency", h.WorkerUpdateErrorResiliency)
		r.Post("/worker/{workerId}/executor", h.WorkerUpdateExecutor)
		r.Post("/worker/{workerId}/metadata", h.WorkerSetMetadata)
		r.Post("/jobs/run", h.JobRun)
	})

	// The shell mounts only once a page passes its enhancers; redirects and
	// login bounces never start a thread count fetch.
	router := NewRouter(table.WrapPages(h.MountShell), http.HandlerFunc(h.NotFound), h.logger)
	r.With(NoCache).Handle("/*", router)
}
