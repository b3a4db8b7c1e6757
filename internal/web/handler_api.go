// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"context"
	"net/http"
	"time"

	"github.com/k-t-corp/broccoli-console/internal/web/templates/types"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheck answers liveness checks. With a checker configured it also
// reports the session backend.
func (h *Handler) HealthCheck(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := checker.HealthCheck(ctx); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "sessions": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "sessions": "ok"})
	}
}

// shellResponse is the JSON rendition of the navigation frame.
type shellResponse struct {
	Title string       `json:"title"`
	State ShellState   `json:"state"`
	Nav   types.NavBar `json:"nav"`
}

// ShellAPI mounts a shell, waits for its thread count fetch and returns the
// resulting state and navigation bar. The optional "path" query parameter
// selects the active section.
func (h *Handler) ShellAPI(w http.ResponseWriter, r *http.Request) {
	shell := h.NewShell()
	shell.Mount(r.Context())
	defer shell.Unmount()

	select {
	case <-shell.Settled():
	case <-r.Context().Done():
		return
	}

	state := shell.State()
	writeJSON(w, http.StatusOK, shellResponse{
		Title: shell.Title(),
		State: state,
		Nav:   BuildNav(shell.Title(), state, r.URL.Query().Get("path")),
	})
}
