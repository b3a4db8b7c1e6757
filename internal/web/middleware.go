// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/k-t-corp/broccoli-console/internal/pkg/logger"
)

// Enhancer names as they appear in route listings.
const (
	EnhancerMessage = "message"
	EnhancerRouting = "routing"
	EnhancerAuth    = "auth"
)

// Middleware builds the page enhancers and the request middleware.
type Middleware struct {
	sessions  SessionStore
	creds     *SessionCredentials
	loginPath string
	logger    *logger.Logger
}

// NewMiddleware creates a Middleware.
func NewMiddleware(sessions SessionStore, creds *SessionCredentials, log *logger.Logger) *Middleware {
	if log == nil {
		log = logger.Nop()
	}
	return &Middleware{
		sessions:  sessions,
		creds:     creds,
		loginPath: LoginPath,
		logger:    log.Named("web"),
	}
}

// ============================================================================
// Page enhancers
// ============================================================================

// WithMessage moves the session's flash message into the request context,
// clearing it from the session.
func (m *Middleware) WithMessage() Enhancer {
	return Enhancer{Name: EnhancerMessage, Wrap: func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			session := SessionFromContext(ctx)
			if session == nil {
				var err error
				session, err = m.sessions.Get(r)
				if err != nil {
					m.logger.Warn("flash: failed to load session", "error", err)
					next.ServeHTTP(w, r)
					return
				}
			}

			if session != nil {
				if flash := popFlash(session); flash != nil {
					ctx = context.WithValue(ctx, ContextKeyFlash, flash)
					if err := m.sessions.Save(r, w, session); err != nil {
						m.logger.Warn("flash: failed to clear message", "error", err)
					}
				}
				ctx = withSession(ctx, session)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}}
}

// Routing gives a page access to its location and to redirects.
type Routing struct {
	Path    string
	Query   url.Values
	Pattern string
	Params  RouteParams
}

// Param returns a bound route parameter.
func (rt *Routing) Param(name string) string {
	return rt.Params[name]
}

// Navigate sends the browser to path, adding a history entry.
func (rt *Routing) Navigate(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// Replace sends the browser to path in place of the current URL.
func (rt *Routing) Replace(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusFound)
}

// WithRouting injects a Routing for the matched route.
func (m *Middleware) WithRouting() Enhancer {
	return Enhancer{Name: EnhancerRouting, Wrap: func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rt := &Routing{
				Path:   r.URL.Path,
				Query:  r.URL.Query(),
				Params: RouteParamsFromContext(r.Context()),
			}
			if match := RouteMatchFromContext(r.Context()); match != nil {
				rt.Pattern = match.Pattern
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ContextKeyRouting, rt)))
		})
	}}
}

// WithAuth lets the request through only with a stored, unexpired access
// token. Otherwise it clears the credentials and redirects to the login page.
func (m *Middleware) WithAuth() Enhancer {
	return Enhancer{Name: EnhancerAuth, Wrap: func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := m.creds.Token(r)
			if err != nil {
				m.logger.Warn("auth: failed to read session", "error", err)
			}
			if token == "" {
				m.redirectToLogin(w, r)
				return
			}
			if m.creds.TokenExpired(token) {
				m.logger.Info("auth: access token expired", "path", r.URL.Path)
				_ = m.creds.UnsetAuth(w, r)
				m.redirectToLogin(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ContextKeyToken, token)))
		})
	}}
}

// redirectToLogin redirects to the login page, remembering the current URL
// of a page load.
func (m *Middleware) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	returnURL := r.URL.Path
	if r.URL.RawQuery != "" {
		returnURL += "?" + r.URL.RawQuery
	}

	target := m.loginPath
	if r.Method == http.MethodGet && returnURL != "/" && returnURL != m.loginPath && isSafeReturnURL(returnURL) {
		target += "?return=" + url.QueryEscape(returnURL)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// isSafeReturnURL accepts only local absolute paths.
func isSafeReturnURL(u string) bool {
	return strings.HasPrefix(u, "/") && !strings.HasPrefix(u, "//") && !strings.Contains(u, "\\")
}

// ============================================================================
// Request middleware
// ============================================================================

// RequestLogger assigns a request id and logs one line per request.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	log = log.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)

			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), ContextKeyRequestID, id)))

			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"duration", time.Since(start),
				"request_id", id,
			)
		})
	}
}

// RecoverPanic answers 500 for a panicking handler instead of dropping the
// connection.
func RecoverPanic(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic recovered in handler",
						"error", rec,
						"path", r.URL.Path,
						"method", r.Method,
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// LoginRateLimit limits login attempts per client IP. Rejected attempts go
// back to the login form with a message.
func LoginRateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 {
		requests = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, LoginPath+"?error="+url.QueryEscape("Too many attempts. Please wait a minute and try again."), http.StatusSeeOther)
		})),
	)
}

// MaxRequestBody caps request body size.
func MaxRequestBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecureHeaders adds security headers to every response.
func SecureHeaders(next http.Handler) http.Handler {
	const csp = "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; " +
		"frame-ancestors 'none'; base-uri 'self'; form-action 'self'"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Content-Security-Policy", csp)
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// NoCache prevents caching of rendered pages.
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
