// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"fmt"
	"strings"

	"github.com/k-t-corp/broccoli-console/internal/web/templates/types"
)

// navSection is a navigation target plus the path prefixes it owns.
type navSection struct {
	label    string
	href     string
	prefixes []string
}

var navSections = []navSection{
	{label: "Mod Views", href: "/modViews/view", prefixes: []string{"/modViews/", "/modView/"}},
	{label: "Workers", href: "/workers/view", prefixes: []string{"/workers/", "/worker/"}},
	{label: "Jobs", href: "/jobs/view", prefixes: []string{"/jobs/"}},
}

// BuildNav derives the navigation bar for one render. Every link is a full
// page navigation; the thread count entry is display-only.
func BuildNav(title string, state ShellState, currentPath string) types.NavBar {
	items := make([]types.NavItem, 0, len(navSections)+1)
	for _, sec := range navSections {
		items = append(items, types.NavItem{
			Label:  sec.label,
			Href:   sec.href,
			Active: sectionActive(sec, currentPath),
		})
	}
	items = append(items, types.NavItem{
		Label:       fmt.Sprintf("Thread count: %d", state.ThreadCount),
		DisplayOnly: true,
	})

	return types.NavBar{
		Title: title,
		Items: items,
		Right: types.NavItem{Label: "Logout", Href: LogoutPath, Method: "POST"},
	}
}

func sectionActive(sec navSection, path string) bool {
	for _, p := range sec.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
