// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/k-t-corp/broccoli-console/internal/pkg/logger"
)

// Router serves a RouteTable. It is mounted as a chi catch-all, so every path
// not claimed by a fixed endpoint reaches it.
type Router struct {
	table    *RouteTable
	notFound http.Handler
	logger   *logger.Logger
}

// NewRouter creates a router. notFound renders the shell with an empty main
// region; a nil notFound answers a bare 404.
func NewRouter(table *RouteTable, notFound http.Handler, log *logger.Logger) *Router {
	if notFound == nil {
		notFound = http.NotFoundHandler()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Router{table: table, notFound: notFound, logger: log.Named("router")}
}

// Table returns the route table.
func (rt *Router) Table() *RouteTable {
	return rt.table
}

// ServeHTTP resolves the escaped request path and dispatches.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := rt.table.Resolve(r.URL.EscapedPath())

	switch res.Kind {
	case ResolvedRedirect:
		target := res.RedirectTo
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusFound)

	case ResolvedPage:
		ctx := bindRouteParams(r.Context(), res.Params)
		ctx = context.WithValue(ctx, ContextKeyMatch, &RouteMatch{Pattern: res.Pattern, Enhancers: res.Enhancers})
		res.Handler.ServeHTTP(w, r.WithContext(ctx))

	default:
		rt.logger.Debug("no route matched", "path", r.URL.Path)
		rt.notFound.ServeHTTP(w, r)
	}
}

// bindRouteParams exposes params through chi.URLParam and
// RouteParamsFromContext.
func bindRouteParams(ctx context.Context, params RouteParams) context.Context {
	rctx := chi.RouteContext(ctx)
	if rctx == nil {
		rctx = chi.NewRouteContext()
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return context.WithValue(ctx, ContextKeyRouteParams, params)
}
