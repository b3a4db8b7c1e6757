// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

// Package layouts holds the page frame: document head, navigation bar, flash
// message and the main content region. The frame is written in templ; run
// "templ generate" after editing a .templ file.
package layouts

import "github.com/k-t-corp/broccoli-console/internal/web/templates/types"

const styles = `
body{margin:0;font-family:system-ui,sans-serif;background:#fafafa;color:#212121}
.nav{display:flex;align-items:center;gap:1.5rem;padding:0 1.5rem;height:56px;background:#00695c;color:#fff}
.nav .title{font-size:1.25rem;font-weight:600;margin-right:1rem}
.nav a,.nav span,.nav button{color:#fff;text-decoration:none;font-size:.95rem}
.nav a.active{border-bottom:2px solid #fff}
.nav .spacer{flex:1}
.nav form{margin:0}
.nav button{background:none;border:1px solid rgba(255,255,255,.6);border-radius:4px;padding:.3rem .8rem;cursor:pointer}
.container{max-width:1200px;margin:0 auto;padding:2rem 1rem 1.5rem}
.flash{padding:.75rem 1rem;border-radius:4px;margin-bottom:1rem}
.flash-success{background:#e0f2f1}.flash-error{background:#ffebee}.flash-info{background:#e3f2fd}
table{border-collapse:collapse;width:100%;background:#fff}
th,td{border-bottom:1px solid #e0e0e0;padding:.5rem;text-align:left;vertical-align:top}
pre{margin:0;white-space:pre-wrap}
textarea{width:100%;font-family:monospace}
.muted{color:#757575}
`

const styleTag = "<style>" + styles + "</style>"

func documentTitle(page types.PageData) string {
	switch {
	case page.Title == "":
		return page.Nav.Title
	case page.Nav.Title == "":
		return page.Title
	default:
		return page.Title + " | " + page.Nav.Title
	}
}
