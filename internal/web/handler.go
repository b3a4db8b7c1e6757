// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/a-h/templ"

	"github.com/k-t-corp/broccoli-console/internal/backend"
	"github.com/k-t-corp/broccoli-console/internal/pkg/errors"
	"github.com/k-t-corp/broccoli-console/internal/pkg/logger"
	"github.com/k-t-corp/broccoli-console/internal/web/templates/layouts"
	"github.com/k-t-corp/broccoli-console/internal/web/templates/types"
)

// HandlerDeps contains the dependencies of a Handler.
type HandlerDeps struct {
	Backend  *backend.Client
	Sessions SessionStore
	Shell    ShellOptions
	Version  string
	Logger   *logger.Logger
}

// Handler serves the console pages and actions.
type Handler struct {
	backend  *backend.Client
	sessions SessionStore
	creds    *SessionCredentials
	mw       *Middleware
	shell    ShellOptions
	version  string
	logger   *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(deps HandlerDeps) *Handler {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	creds := NewSessionCredentials(deps.Sessions)
	shell := deps.Shell
	shell.Logger = log
	return &Handler{
		backend:  deps.Backend,
		sessions: deps.Sessions,
		creds:    creds,
		mw:       NewMiddleware(deps.Sessions, creds, log),
		shell:    shell,
		version:  deps.Version,
		logger:   log.Named("web"),
	}
}

// Middleware returns the enhancer factory.
func (h *Handler) Middleware() *Middleware {
	return h.mw
}

// Credentials returns the session credential store.
func (h *Handler) Credentials() *SessionCredentials {
	return h.creds
}

// NewShell creates an unmounted shell wired to the backend and the session.
func (h *Handler) NewShell() *Shell {
	return NewShell(h.backend, h.creds, h.shell)
}

// MountShell mounts a fresh shell for every page load so the thread count
// fetch runs while the page loads its own data. The shell is unmounted when
// the request ends. HEAD requests render no frame and get no shell.
func (h *Handler) MountShell(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		shell := h.NewShell()
		shell.Mount(r.Context())
		defer shell.Unmount()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ContextKeyShell, shell)))
	})
}

// NotFound renders the frame with an empty main region.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, "Not found", nil)
}

// render writes content inside the navigation frame. A pending thread count
// fetch gets up to RenderWait to settle; after that the frame shows the
// sentinel.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, title string, content templ.Component) {
	ctx := r.Context()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}

	shell := ShellFromContext(ctx)
	if shell == nil {
		shell = h.NewShell()
		shell.Mount(ctx)
		defer shell.Unmount()
	}
	h.awaitShell(ctx, shell)

	page := types.PageData{
		Title:     title,
		Nav:       BuildNav(shell.Title(), shell.State(), r.URL.Path),
		Flash:     FlashFromContext(ctx),
		Version:   h.version,
		NotFound:  status == http.StatusNotFound,
		RequestID: RequestIDFromContext(ctx),
	}

	w.WriteHeader(status)
	if err := layouts.Base(page, content).Render(ctx, w); err != nil {
		h.logger.Error("failed to render page", "path", r.URL.Path, "error", err)
	}
}

func (h *Handler) awaitShell(ctx context.Context, shell *Shell) {
	if h.shell.RenderWait <= 0 {
		return
	}
	timer := time.NewTimer(h.shell.RenderWait)
	defer timer.Stop()
	select {
	case <-shell.Settled():
	case <-timer.C:
	case <-ctx.Done():
	}
}

// client returns a backend client authorized with the request's token.
func (h *Handler) client(r *http.Request) *backend.AuthorizedClient {
	return h.backend.As(TokenFromContext(r.Context()))
}

// redirect answers a form post with 303.
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, target string) {
	if rt := RoutingFromContext(r.Context()); rt != nil {
		rt.Navigate(w, r, target)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// flashRedirect stores a flash message and redirects.
func (h *Handler) flashRedirect(w http.ResponseWriter, r *http.Request, flashType, message, target string) {
	if err := SetFlash(w, r, h.sessions, flashType, message); err != nil {
		h.logger.Warn("failed to store flash message", "error", err)
	}
	h.redirect(w, r, target)
}

// backendError handles a failed backend call. A rejected token ends the
// session; anything else is shown in the frame with the mapped status.
func (h *Handler) backendError(w http.ResponseWriter, r *http.Request, title string, err error) {
	if errors.IsCode(err, errors.CodeUnauthorized) {
		h.logger.Info("backend rejected access token", "path", r.URL.Path)
		_ = h.creds.UnsetAuth(w, r)
		http.Redirect(w, r, LoginPath+"?return="+url.QueryEscape(r.URL.RequestURI()), http.StatusSeeOther)
		return
	}

	status := errors.HTTPStatusCode(err)
	message := "Request to the Broccoli server failed"
	if ae, ok := errors.GetAppError(err); ok && ae.Message != "" {
		message = ae.Message
	}
	h.logger.Warn("backend call failed", "path", r.URL.Path, "status", status, "error", err)

	ctx := context.WithValue(r.Context(), ContextKeyFlash, &types.FlashData{Type: FlashError, Message: message})
	h.render(w, r.WithContext(ctx), status, title, nil)
}

// actionError reports a failed form action as a flash message on target,
// unless the token was rejected.
func (h *Handler) actionError(w http.ResponseWriter, r *http.Request, target string, err error) {
	if errors.IsCode(err, errors.CodeUnauthorized) {
		_ = h.creds.UnsetAuth(w, r)
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		return
	}
	message := err.Error()
	if ae, ok := errors.GetAppError(err); ok {
		message = ae.Message
	}
	h.logger.Warn("action failed", "path", r.URL.Path, "error", err)
	h.flashRedirect(w, r, FlashError, message, target)
}
