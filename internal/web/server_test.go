// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestServerRouter_Compress(t *testing.T) {
	c := newTestConsole(t)
	router := NewServerRouter(ServerConfig{Handler: c.handler, Compress: true})

	req := httptest.NewRequest(http.MethodGet, LoginPath, nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader() error = %v", err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	if !strings.Contains(string(body), `action="/login"`) {
		t.Errorf("decompressed body missing login form")
	}

	// Without Accept-Encoding the page is sent as is.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, LoginPath, nil))
	if rec.Header().Get("Content-Encoding") != "" {
		t.Errorf("unexpected Content-Encoding %q", rec.Header().Get("Content-Encoding"))
	}
}

func TestServerRouter_CORS(t *testing.T) {
	c := newTestConsole(t)
	router := NewServerRouter(ServerConfig{
		Handler: c.handler,
		CORS:    CORSConfig{AllowedOrigins: []string{"https://admin.example.com"}, MaxAge: 60},
	})

	tests := []struct {
		origin string
		want   string
	}{
		{"https://admin.example.com", "https://admin.example.com"},
		{"https://evil.example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/shell", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServerRouter_LoginRateLimit(t *testing.T) {
	c := newTestConsole(t)
	router := NewServerRouter(ServerConfig{Handler: c.handler, LoginRateLimit: 2, LoginWindow: time.Minute})

	form := url.Values{"username": {"admin"}, "password": {"wrong"}}
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, LoginPath, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "203.0.113.7:5000"
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
	}

	loc := last.Header().Get("Location")
	if last.Code != http.StatusSeeOther || !strings.Contains(loc, "Too+many+attempts") {
		t.Errorf("third attempt = %d %q, want throttled redirect", last.Code, loc)
	}
	if c.backend.authCalls() != 2 {
		t.Errorf("backend /auth calls = %d, want 2", c.backend.authCalls())
	}
}
