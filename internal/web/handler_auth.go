// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/k-t-corp/broccoli-console/internal/pkg/errors"
	"github.com/k-t-corp/broccoli-console/internal/web/templates/layouts"
	"github.com/k-t-corp/broccoli-console/internal/web/templates/pages"
	"github.com/k-t-corp/broccoli-console/internal/web/templates/types"
)

// LoginPage renders the login form in a frame without navigation. A visitor with a live token goes straight
// to the return URL.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	returnURL := q.Get("return")

	if tok, _ := h.creds.Token(r); tok != "" && !h.creds.TokenExpired(tok) {
		http.Redirect(w, r, loginTarget(returnURL), http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := pages.LoginData{
		Username:  q.Get("username"),
		Error:     q.Get("error"),
		ReturnURL: returnURL,
	}
	frame := types.PageData{
		Title:   "Login",
		Nav:     types.NavBar{Title: h.NewShell().Title()},
		Version: h.version,
	}
	if err := layouts.Base(frame, pages.Login(data)).Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render login page", "error", err)
	}
}

// LoginSubmit exchanges the credentials for an access token.
func (h *Handler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.loginFailed(w, r, "", "", "Invalid form data")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	returnURL := r.FormValue("return")

	if username == "" || password == "" {
		h.loginFailed(w, r, username, returnURL, "Username and password required")
		return
	}

	token, err := h.backend.Authenticate(r.Context(), username, password)
	if err != nil {
		message := "Login failed"
		if ae, ok := errors.GetAppError(err); ok && ae.Message != "" {
			message = ae.Message
		}
		h.logger.Info("login rejected", "username", username, "error", err)
		h.loginFailed(w, r, username, returnURL, message)
		return
	}

	if err := h.creds.SetAuth(w, r, username, token); err != nil {
		h.logger.Error("failed to store session", "username", username, "error", err)
		h.loginFailed(w, r, username, returnURL, "Session creation failed")
		return
	}

	h.logger.Info("user logged in", "username", username)
	http.Redirect(w, r, loginTarget(returnURL), http.StatusSeeOther)
}

// Logout drops the stored token and returns to the login form.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.NewShell().Logout(w, r); err != nil {
		h.logger.Warn("failed to clear session", "error", err)
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

func (h *Handler) loginFailed(w http.ResponseWriter, r *http.Request, username, returnURL, message string) {
	q := url.Values{}
	q.Set("error", message)
	if username != "" {
		q.Set("username", username)
	}
	if returnURL != "" {
		q.Set("return", returnURL)
	}
	http.Redirect(w, r, LoginPath+"?"+q.Encode(), http.StatusSeeOther)
}

// loginTarget is where a successful login lands.
func loginTarget(returnURL string) string {
	if returnURL != "" && returnURL != LoginPath && isSafeReturnURL(returnURL) {
		return returnURL
	}
	return HomePath
}
