// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"encoding/json"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/k-t-corp/broccoli-console/internal/backend"
)

func TestConsoleRoutes_Table(t *testing.T) {
	c := newTestConsole(t)

	got := ConsoleRoutes(c.handler).Routes()
	want := []RouteInfo{
		{Pattern: "/", Exact: true, RedirectTo: "/modViews/view"},
		{Pattern: "/modViews/view", Exact: true, Enhancers: []string{"message", "routing", "auth"}},
		{Pattern: "/modView/:name", Exact: true, Enhancers: []string{"message", "auth"}},
		{Pattern: "/workers/view", Exact: true, Enhancers: []string{"message", "routing", "auth"}},
		{Pattern: "/workers/create", Exact: true, Enhancers: []string{"message", "routing", "auth"}},
		{Pattern: "/worker/:workerId", Exact: true, Enhancers: []string{"message", "auth"}},
		{Pattern: "/jobs/view", Exact: true, Enhancers: []string{"auth"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ConsoleRoutes() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestServer_RootRedirect(t *testing.T) {
	c := newTestConsole(t)

	rec := c.do(http.MethodGet, "/?x=1", nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != "/modViews/view?x=1" {
		t.Errorf("Location = %q", loc)
	}
}

func TestServer_PageRequiresLogin(t *testing.T) {
	c := newTestConsole(t)

	rec := c.do(http.MethodGet, "/workers/view", nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/login?return=%2Fworkers%2Fview" {
		t.Errorf("Location = %q", loc)
	}
}

func TestServer_LoginFlow(t *testing.T) {
	c := newTestConsole(t)

	rec := c.do(http.MethodGet, "/login?return=%2Fjobs%2Fview", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /login status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `name="return" value="/jobs/view"`) {
		t.Error("login form does not carry the return URL")
	}
	if strings.Contains(body, "Thread count") {
		t.Error("login page should not render the navigation items")
	}

	rec = c.do(http.MethodPost, "/login", url.Values{"username": {"admin"}, "password": {"wrong"}})
	if rec.Code != http.StatusSeeOther || !strings.Contains(rec.Header().Get("Location"), "error=Wrong+username+or+password") {
		t.Errorf("bad login = %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = c.do(http.MethodPost, "/login", url.Values{"username": {"admin"}, "password": {"secret"}, "return": {"/jobs/view"}})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/jobs/view" {
		t.Errorf("good login = %d %q", rec.Code, rec.Header().Get("Location"))
	}

	rec = c.do(http.MethodPost, "/login", url.Values{"username": {"admin"}, "password": {"secret"}, "return": {"//evil.example"}})
	if rec.Header().Get("Location") != HomePath {
		t.Errorf("unsafe return redirected to %q", rec.Header().Get("Location"))
	}
}

func TestServer_RendersThreadCount(t *testing.T) {
	c := newTestConsole(t)
	cookie := c.login(t)

	rec := c.do(http.MethodGet, "/modViews/view", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{"Thread count: 7", "Test Instance", `href="/modView/pending"`, `class="active">Mod Views`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestServer_NotFoundRendersShell(t *testing.T) {
	c := newTestConsole(t)
	cookie := c.login(t)

	for _, path := range []string{"/nope", "/workers/view/extra", "/worker/abc123/remove"} {
		t.Run(path, func(t *testing.T) {
			rec := c.do(http.MethodGet, path, nil, cookie)
			if rec.Code != http.StatusNotFound {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
			}
			body := rec.Body.String()
			if !strings.Contains(body, "Thread count: 7") {
				t.Error("not-found page should still render the navigation")
			}
			if !strings.Contains(body, `<main id="main"></main>`) {
				t.Error("main region should be empty")
			}
		})
	}
}

func TestServer_DoubleSlashIsNotFound(t *testing.T) {
	c := newTestConsole(t)

	rec := c.do(http.MethodGet, "//", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d (Location %q)", rec.Code, http.StatusNotFound, rec.Header().Get("Location"))
	}
}

func TestServer_EscapedPathParams(t *testing.T) {
	c := newTestConsole(t)
	cookie := c.login(t)
	c.backend.mu.Lock()
	c.backend.workers = append(c.backend.workers, backend.Worker{WorkerID: "x/y", ModuleName: "indexer", ExecutorSlug: "aps_native"})
	c.backend.mu.Unlock()

	rec := c.do(http.MethodGet, "/modView/a%2Fb", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /modView/a%%2Fb status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `action="/modView/a%2Fb/callback"`) {
		t.Error("callback form should post to the escaped view name")
	}
	c.backend.mu.Lock()
	boards := append([]string(nil), c.backend.boards...)
	c.backend.mu.Unlock()
	if !reflect.DeepEqual(boards, []string{"a/b"}) {
		t.Errorf("rendered boards = %v, want [a/b]", boards)
	}

	rec = c.do(http.MethodPost, "/modView/a%2Fb/callback", url.Values{"callback_id": {"cb1"}, "document": {"{}"}}, cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/modView/a%2Fb" {
		t.Errorf("callback = %d %q, want 303 to /modView/a%%2Fb", rec.Code, rec.Header().Get("Location"))
	}

	rec = c.do(http.MethodGet, "/worker/x%2Fy", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /worker/x%%2Fy status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `action="/worker/x%2Fy/intervalSeconds"`) {
		t.Error("worker forms should post to the escaped worker id")
	}

	rec = c.do(http.MethodPost, "/worker/x%2Fy/intervalSeconds", url.Values{"interval_seconds": {"90"}}, cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/worker/x%2Fy" {
		t.Errorf("interval update = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	c.backend.mu.Lock()
	got := c.backend.intervals["x/y"]
	c.backend.mu.Unlock()
	if got != 90 {
		t.Errorf("backend interval for x/y = %d, want 90", got)
	}
}

func TestServer_ShellFetchOnlyForRenderedFrames(t *testing.T) {
	c := newTestConsole(t)

	if rec := c.do(http.MethodGet, "/", nil); rec.Code != http.StatusFound {
		t.Fatalf("GET / status = %d", rec.Code)
	}
	if rec := c.do(http.MethodGet, "/workers/view", nil); rec.Code != http.StatusSeeOther {
		t.Fatalf("anonymous GET /workers/view status = %d", rec.Code)
	}
	cookie := c.login(t)
	if rec := c.do(http.MethodHead, "/modViews/view", nil, cookie); rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("HEAD /modViews/view = %d with %d body bytes", rec.Code, rec.Body.Len())
	}
	if n := c.backend.threadCountCalls(); n != 0 {
		t.Fatalf("thread count fetched %d times for redirects, bounces and HEAD", n)
	}

	if rec := c.do(http.MethodGet, "/modViews/view", nil, cookie); rec.Code != http.StatusOK {
		t.Fatalf("GET /modViews/view status = %d", rec.Code)
	}
	if n := c.backend.threadCountCalls(); n != 1 {
		t.Errorf("thread count fetched %d times for one page, want 1", n)
	}
}

func TestServer_SlowThreadCountRendersSentinel(t *testing.T) {
	c := newTestConsoleWithShell(t, ShellOptions{Title: "Broccoli", FetchTimeout: 10 * time.Second, RenderWait: 20 * time.Millisecond})
	cookie := c.login(t)
	release := c.backend.holdThreadCount(t)
	defer release()

	start := time.Now()
	rec := c.do(http.MethodGet, "/workers/view", nil, cookie)
	elapsed := time.Since(start)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Thread count: -1") {
		t.Error("page should render the sentinel while the fetch is pending")
	}
	if elapsed > 5*time.Second {
		t.Errorf("render took %s, want it bounded by the render wait", elapsed)
	}
}

func TestServer_WorkerPage(t *testing.T) {
	c := newTestConsole(t)
	cookie := c.login(t)

	rec := c.do(http.MethodGet, "/worker/abc123", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"abc123", "crawler", `<option value="aps_native" selected>`, "&#34;cursor&#34;: 3"} {
		if !strings.Contains(body, want) {
			t.Errorf("worker page missing %q", want)
		}
	}

	rec = c.do(http.MethodGet, "/worker/missing", nil, cookie)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown worker status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestServer_WorkerActions(t *testing.T) {
	c := newTestConsole(t)
	cookie := c.login(t)

	rec := c.do(http.MethodPost, "/worker/abc123/intervalSeconds", url.Values{"interval_seconds": {"120"}}, cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/worker/abc123" {
		t.Fatalf("interval update = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if got := c.backend.intervals["abc123"]; got != 120 {
		t.Errorf("backend interval = %d, want 120", got)
	}

	rec = c.do(http.MethodGet, "/worker/abc123", nil, cookie)
	if !strings.Contains(rec.Body.String(), "Interval updated") {
		t.Error("flash message not shown after the update")
	}
	rec = c.do(http.MethodGet, "/worker/abc123", nil, cookie)
	if strings.Contains(rec.Body.String(), "Interval updated") {
		t.Error("flash message shown twice")
	}

	rec = c.do(http.MethodPost, "/worker/abc123/intervalSeconds", url.Values{"interval_seconds": {"-5"}}, cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("invalid interval status = %d", rec.Code)
	}
	rec = c.do(http.MethodGet, "/worker/abc123", nil, cookie)
	if !strings.Contains(rec.Body.String(), "non-negative") {
		t.Error("validation error not shown")
	}

	rec = c.do(http.MethodPost, "/worker/abc123/remove", url.Values{}, cookie)
	if rec.Header().Get("Location") != "/workers/view" {
		t.Errorf("remove redirected to %q", rec.Header().Get("Location"))
	}
	if len(c.backend.removed) != 1 || c.backend.removed[0] != "abc123" {
		t.Errorf("removed = %v", c.backend.removed)
	}
}

func TestServer_ActionsRequireLogin(t *testing.T) {
	c := newTestConsole(t)

	rec := c.do(http.MethodPost, "/worker/abc123/remove", url.Values{})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != LoginPath {
		t.Errorf("anonymous action = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if len(c.backend.removed) != 0 {
		t.Error("backend called without credentials")
	}
}

func TestServer_CreateWorker(t *testing.T) {
	c := newTestConsole(t)
	cookie := c.login(t)

	rec := c.do(http.MethodGet, "/workers/create", nil, cookie)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `<option value="indexer">`) {
		t.Fatalf("create form = %d", rec.Code)
	}

	rec = c.do(http.MethodPost, "/workers/create", url.Values{
		"module_name":      {"crawler"},
		"args":             {"[1,2]"},
		"interval_seconds": {"60"},
	}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid args status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if !strings.Contains(rec.Body.String(), "args: args must be a JSON object") {
		t.Error("validation message not rendered")
	}

	rec = c.do(http.MethodPost, "/workers/create", url.Values{
		"module_name":      {"crawler"},
		"args":             {`{"url":"https://example.com"}`},
		"interval_seconds": {"60"},
	}, cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/workers/view" {
		t.Fatalf("create = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	rec = c.do(http.MethodGet, "/workers/view", nil, cookie)
	if !strings.Contains(rec.Body.String(), "Worker new1 added") {
		t.Error("created flash not shown on the workers page")
	}
}

func TestServer_Jobs(t *testing.T) {
	c := newTestConsole(t)
	cookie := c.login(t)

	rec := c.do(http.MethodGet, "/jobs/view", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{`<option value="reindex">`, "finished", "done"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("jobs page missing %q", want)
		}
	}

	rec = c.do(http.MethodPost, "/jobs/run", url.Values{"module_name": {"reindex"}, "args": {"{}"}}, cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/jobs/view" {
		t.Errorf("run = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if len(c.backend.jobRuns) != 1 || c.backend.jobRuns[0] != "reindex" {
		t.Errorf("job runs = %v", c.backend.jobRuns)
	}
}

func TestServer_ModView(t *testing.T) {
	c := newTestConsole(t)
	cookie := c.login(t)

	rec := c.do(http.MethodGet, "/modView/pending", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{"<th>title</th>", "<td>First post</td>", "Showing 1 of 42"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("mod view missing %q", want)
		}
	}
}

func TestServer_RevokedTokenEndsSession(t *testing.T) {
	c := newTestConsole(t)
	cookie := c.login(t)

	c.backend.mu.Lock()
	c.backend.token = "rotated"
	c.backend.mu.Unlock()

	rec := c.do(http.MethodGet, "/workers/view", nil, cookie)
	if rec.Code != http.StatusSeeOther || !strings.HasPrefix(rec.Header().Get("Location"), LoginPath) {
		t.Errorf("status = %d %q, want redirect to login", rec.Code, rec.Header().Get("Location"))
	}
	if c.sessions.Len() != 0 {
		t.Error("session should be dropped when the backend rejects the token")
	}
}

func TestServer_Logout(t *testing.T) {
	c := newTestConsole(t)
	cookie := c.login(t)

	rec := c.do(http.MethodPost, "/logout", url.Values{}, cookie)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != LoginPath {
		t.Errorf("logout = %d %q", rec.Code, rec.Header().Get("Location"))
	}
	if c.sessions.Len() != 0 {
		t.Errorf("sessions = %d, want 0", c.sessions.Len())
	}

	rec = c.do(http.MethodGet, "/workers/view", nil, cookie)
	if rec.Code != http.StatusSeeOther {
		t.Errorf("page after logout = %d, want redirect", rec.Code)
	}
}

func TestServer_ShellAPI(t *testing.T) {
	c := newTestConsole(t)

	rec := c.do(http.MethodGet, "/api/shell?path=/jobs/view", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp shellResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State.ThreadCount != 7 || !resp.State.Loaded {
		t.Errorf("state = %+v", resp.State)
	}
	if len(resp.Nav.Items) != 4 || !resp.Nav.Items[2].Active {
		t.Errorf("nav = %+v", resp.Nav)
	}
}

func TestServer_Health(t *testing.T) {
	c := newTestConsole(t)

	rec := c.do(http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
}
