// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

// tracing returns an enhancer that records its name around the inner handler.
func tracing(name string, trace *[]string) Enhancer {
	return Enhancer{Name: name, Wrap: func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*trace = append(*trace, name+">")
			next.ServeHTTP(w, r)
			*trace = append(*trace, "<"+name)
		})
	}}
}

func TestCompose_Order(t *testing.T) {
	var trace []string
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace = append(trace, "page")
	})

	h := Compose(base, tracing("a", &trace), tracing("b", &trace), tracing("c", &trace))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	// c(b(a(page))): the last enhancer sees the request first.
	want := []string{"c>", "b>", "a>", "page", "<a", "<b", "<c"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("call order = %v, want %v", trace, want)
	}
}

func TestCompose_EmptyReturnsBase(t *testing.T) {
	called := false
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	h := Compose(base)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("Compose() with no enhancers did not call base")
	}
}

func TestCompose_SkipsNilWrap(t *testing.T) {
	var trace []string
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace = append(trace, "page")
	})

	h := Compose(base, Enhancer{Name: "noop"}, tracing("a", &trace))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"a>", "page", "<a"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("call order = %v, want %v", trace, want)
	}
}

func TestCompose_ShortCircuit(t *testing.T) {
	deny := Enhancer{Name: "deny", Wrap: func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "denied", http.StatusForbidden)
		})
	}}
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("page should not run behind a denying enhancer")
	})

	rec := httptest.NewRecorder()
	Compose(base, deny).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusForbidden || !strings.Contains(rec.Body.String(), "denied") {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
}

func TestDescribe(t *testing.T) {
	var trace []string
	got := Describe([]Enhancer{tracing("message", &trace), tracing("routing", &trace), tracing("auth", &trace)})
	want := []string{"message", "routing", "auth"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Describe() = %v, want %v", got, want)
	}
	if got := Describe(nil); len(got) != 0 {
		t.Errorf("Describe(nil) = %v, want empty", got)
	}
}
