// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"context"

	"github.com/k-t-corp/broccoli-console/internal/web/templates/types"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	ContextKeyRequestID   ContextKey = "request_id"
	ContextKeySession     ContextKey = "session"
	ContextKeyToken       ContextKey = "access_token"
	ContextKeyFlash       ContextKey = "flash"
	ContextKeyRouting     ContextKey = "routing"
	ContextKeyRouteParams ContextKey = "route_params"
	ContextKeyMatch       ContextKey = "route_match"
	ContextKeyShell       ContextKey = "shell"
)

// RouteParams holds the values bound by ':name' pattern segments.
type RouteParams map[string]string

// RouteMatch describes the route table entry that served a request.
type RouteMatch struct {
	Pattern   string
	Enhancers []string
}

// RouteParamsFromContext returns the bound route parameters, or nil.
func RouteParamsFromContext(ctx context.Context) RouteParams {
	params, _ := ctx.Value(ContextKeyRouteParams).(RouteParams)
	return params
}

// RouteMatchFromContext returns the matched route, or nil outside the router.
func RouteMatchFromContext(ctx context.Context) *RouteMatch {
	m, _ := ctx.Value(ContextKeyMatch).(*RouteMatch)
	return m
}

// RoutingFromContext returns the routing context injected by the routing
// enhancer, or nil when the page was not enhanced with it.
func RoutingFromContext(ctx context.Context) *Routing {
	rt, _ := ctx.Value(ContextKeyRouting).(*Routing)
	return rt
}

// FlashFromContext returns the flash message injected by the message
// enhancer, or nil.
func FlashFromContext(ctx context.Context) *types.FlashData {
	flash, _ := ctx.Value(ContextKeyFlash).(*types.FlashData)
	return flash
}

// TokenFromContext returns the access token verified by the auth enhancer.
func TokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(ContextKeyToken).(string)
	return tok
}

// SessionFromContext returns the session cached by an earlier middleware.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ContextKeySession).(*Session)
	return s
}

// ShellFromContext returns the shell mounted for this request, or nil.
func ShellFromContext(ctx context.Context) *Shell {
	s, _ := ctx.Value(ContextKeyShell).(*Shell)
	return s
}

// RequestIDFromContext returns the request id set by the request logger.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyRequestID).(string)
	return id
}
