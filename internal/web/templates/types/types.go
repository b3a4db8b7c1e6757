// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

// Package types contains the view models shared by the web handlers and the
// templ components.
package types

// PageData is the frame every page renders inside.
type PageData struct {
	Title     string // document title
	Nav       NavBar
	Flash     *FlashData
	Version   string
	NotFound  bool
	RequestID string
}

// NavBar is the fixed navigation bar.
type NavBar struct {
	Title string    `json:"title"`
	Items []NavItem `json:"items"`
	Right NavItem   `json:"right"`
}

// NavItem is one entry of the navigation bar. Display-only items render as
// plain text; items with Method "POST" render as a form button.
type NavItem struct {
	Label       string `json:"label"`
	Href        string `json:"href,omitempty"`
	Method      string `json:"method,omitempty"`
	Active      bool   `json:"active,omitempty"`
	DisplayOnly bool   `json:"display_only,omitempty"`
}

// FlashData is a one-shot message shown above the page content.
type FlashData struct {
	Type    string // success, error, warning, info
	Message string
}

// Option is a select option.
type Option struct {
	Value    string
	Label    string
	Selected bool
}
