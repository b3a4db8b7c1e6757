// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/k-t-corp/broccoli-console/internal/backend"
	"github.com/k-t-corp/broccoli-console/internal/testutil"
)

// ============================================================================
// Fakes
// ============================================================================

// fakeCounter answers thread count fetches. With a gate it blocks until the
// gate is closed, ignoring cancellation, so late results can be observed.
type fakeCounter struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
	n     int
	err   error
}

func (f *fakeCounter) GetThreadCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.n, f.err
}

func (f *fakeCounter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCreds struct {
	mu    sync.Mutex
	unset int
}

func (f *fakeCreds) UnsetAuth(w http.ResponseWriter, r *http.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unset++
	return nil
}

func (f *fakeCreds) Unsets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unset
}

// waitSettled fails the test if the shell's fetch does not finish in time.
func waitSettled(t *testing.T, s *Shell) {
	t.Helper()
	select {
	case <-s.Settled():
	case <-time.After(2 * time.Second):
		t.Fatal("shell fetch did not settle")
	}
}

// makeToken returns an HS256 token expiring at exp.
func makeToken(t *testing.T, exp time.Time) string {
	t.Helper()
	return testutil.Token(t, "admin", exp)
}

// ============================================================================
// Fake Broccoli server
// ============================================================================

type fakeBackend struct {
	*httptest.Server

	mu          sync.Mutex
	token       string
	threadCount int
	workers     []backend.Worker
	removed     []string
	intervals   map[string]int
	jobRuns     []string
	auths       int
	countCalls  int
	countGate   chan struct{}
	boards      []string
	callbacks   []string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		token:       makeToken(t, time.Now().Add(time.Hour)),
		threadCount: 7,
		workers: []backend.Worker{
			{WorkerID: "abc123", ModuleName: "crawler", Args: map[string]interface{}{"url": "https://example.com"}, IntervalSeconds: 60, ExecutorSlug: "aps_native"},
		},
		intervals: map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		fb.auths++
		fb.mu.Unlock()
		if body.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":"error","message":"Wrong username or password"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "access_token": fb.currentToken()})
	})
	mux.HandleFunc("GET /debug/threadCount", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.countCalls++
		gate := fb.countGate
		fb.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		fb.mu.Lock()
		defer fb.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]int{"thread_count": fb.threadCount})
	})

	api := http.NewServeMux()
	api.HandleFunc("GET /apiInternal/instanceTitle", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Test Instance"))
	})
	api.HandleFunc("GET /apiInternal/boards", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"board_id":"pending","board_query":{"q":{},"limit":10,"projections":[{"name":"title"}]}}]`))
	})
	api.HandleFunc("GET /apiInternal/renderBoard/{id}", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.boards = append(fb.boards, r.PathValue("id"))
		fb.mu.Unlock()
		_, _ = w.Write([]byte(`{"board_query":{"q":{},"projections":[{"name":"title"}]},"payload":[{"title":"First post"}],"count_without_limit":42}`))
	})
	api.HandleFunc("POST /apiInternal/callbackBoard/{id}", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.callbacks = append(fb.callbacks, r.PathValue("id"))
		fb.mu.Unlock()
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	api.HandleFunc("GET /apiInternal/worker", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		_ = json.NewEncoder(w).Encode(fb.workers)
	})
	api.HandleFunc("GET /apiInternal/worker/modules", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["crawler","indexer"]`))
	})
	api.HandleFunc("POST /apiInternal/worker", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","worker_id":"new1"}`))
	})
	api.HandleFunc("DELETE /apiInternal/worker/{id}", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.removed = append(fb.removed, r.PathValue("id"))
		fb.mu.Unlock()
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	api.HandleFunc("PUT /apiInternal/worker/{id}/intervalSeconds/{n}", func(w http.ResponseWriter, r *http.Request) {
		var n int
		_ = json.Unmarshal([]byte(r.PathValue("n")), &n)
		fb.mu.Lock()
		fb.intervals[r.PathValue("id")] = n
		fb.mu.Unlock()
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	api.HandleFunc("GET /apiInternal/executor", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["aps_native","aps_reduced"]`))
	})
	api.HandleFunc("GET /apiInternal/worker/{id}/metadata", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"cursor":3}`))
	})
	api.HandleFunc("GET /apiInternal/oneOffJob/modules", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["reindex"]`))
	})
	api.HandleFunc("GET /apiInternal/oneOffJob/run", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"job_id":"j1","module_name":"reindex","args":{},"state":"finished","drained_log_lines":["done"]}]`))
	})
	api.HandleFunc("POST /apiInternal/oneOffJob/run", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ModuleName string `json:"module_name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		fb.jobRuns = append(fb.jobRuns, body.ModuleName)
		fb.mu.Unlock()
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/apiInternal/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+fb.currentToken() {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"Missing Authorization Header"}`))
			return
		}
		api.ServeHTTP(w, r)
	}))

	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

func (fb *fakeBackend) authCalls() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.auths
}

func (fb *fakeBackend) threadCountCalls() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.countCalls
}

// holdThreadCount blocks thread count answers until the returned func runs.
func (fb *fakeBackend) holdThreadCount(t *testing.T) func() {
	t.Helper()
	gate := make(chan struct{})
	fb.mu.Lock()
	fb.countGate = gate
	fb.mu.Unlock()
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return release
}

func (fb *fakeBackend) currentToken() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.token
}

// ============================================================================
// Console under test
// ============================================================================

type testConsole struct {
	backend  *fakeBackend
	handler  *Handler
	sessions *MemorySessionStore
	router   http.Handler
}

func newTestConsole(t *testing.T) *testConsole {
	t.Helper()
	return newTestConsoleWithShell(t, ShellOptions{Title: "Broccoli", FetchTimeout: 2 * time.Second, RenderWait: 2 * time.Second})
}

func newTestConsoleWithShell(t *testing.T, shell ShellOptions) *testConsole {
	t.Helper()
	fb := newFakeBackend(t)
	sessions := NewMemorySessionStore(time.Hour, CookieConfig{})
	h := NewHandler(HandlerDeps{
		Backend:  backend.NewClient(backend.Config{BaseURL: fb.URL}, nil),
		Sessions: sessions,
		Shell:    shell,
		Version:  "test",
	})
	return &testConsole{
		backend:  fb,
		handler:  h,
		sessions: sessions,
		router:   NewServerRouter(ServerConfig{Handler: h, LoginRateLimit: 100}),
	}
}

// do sends a request through the full server router.
func (c *testConsole) do(method, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	return rec
}

// login signs in and returns the session cookie.
func (c *testConsole) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := c.do(http.MethodPost, "/login", url.Values{"username": {"admin"}, "password": {"secret"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("POST /login status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	ck := sessionCookie(rec)
	if ck == nil {
		t.Fatal("POST /login did not set a session cookie")
	}
	return ck
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == CookieSession && ck.Value != "" {
			return ck
		}
	}
	return nil
}
