// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

// Cookie and path constants used throughout the web layer.
const (
	CookieSession = "broccoli_console_session"

	LoginPath  = "/login"
	LogoutPath = "/logout"
	HomePath   = "/modViews/view"
)

// Session value keys.
const (
	sessionKeyToken = "access_token"
	sessionKeyFlash = "flash"
)
