// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import "net/http"

// Enhancer wraps a page with cross-cutting behavior. Wrap must be stateless:
// the same Enhancer may wrap many pages.
type Enhancer struct {
	Name string
	Wrap func(http.Handler) http.Handler
}

// Compose applies enhancers to base in list order, so the first enhancer is
// innermost and the last one sees the request first. An empty list returns
// base unchanged. Enhancers with a nil Wrap are skipped.
func Compose(base http.Handler, enhancers ...Enhancer) http.Handler {
	h := base
	for _, e := range enhancers {
		if e.Wrap == nil {
			continue
		}
		h = e.Wrap(h)
	}
	return h
}

// Describe returns the enhancer names in application order.
func Describe(enhancers []Enhancer) []string {
	names := make([]string, 0, len(enhancers))
	for _, e := range enhancers {
		names = append(names, e.Name)
	}
	return names
}
