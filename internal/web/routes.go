// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/k-t-corp/broccoli-console/internal/pkg/errors"
)

// Entry is a RouteEntry or a RedirectEntry.
type Entry interface {
	pattern() string
	isExact() bool
}

// RouteEntry maps a path pattern to a page. ':name' segments bind one
// non-empty path segment. An exact entry never matches a longer path.
type RouteEntry struct {
	Pattern   string
	Exact     bool
	Page      http.Handler
	Enhancers []Enhancer
}

func (e RouteEntry) pattern() string { return e.Pattern }
func (e RouteEntry) isExact() bool   { return e.Exact }

// RedirectEntry sends matching paths to To.
type RedirectEntry struct {
	From  string
	To    string
	Exact bool
}

func (e RedirectEntry) pattern() string { return e.From }
func (e RedirectEntry) isExact() bool   { return e.Exact }

// ResolutionKind tells what a path resolved to.
type ResolutionKind int

const (
	ResolvedNotFound ResolutionKind = iota
	ResolvedPage
	ResolvedRedirect
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolvedPage:
		return "page"
	case ResolvedRedirect:
		return "redirect"
	default:
		return "not_found"
	}
}

// Resolution is the outcome of RouteTable.Resolve.
type Resolution struct {
	Kind       ResolutionKind
	Pattern    string
	Params     RouteParams
	Handler    http.Handler // composed page, for ResolvedPage
	RedirectTo string       // for ResolvedRedirect
	Enhancers  []string
}

// RouteInfo describes one table entry for listings.
type RouteInfo struct {
	Pattern    string   `yaml:"pattern" json:"pattern"`
	Exact      bool     `yaml:"exact" json:"exact"`
	RedirectTo string   `yaml:"redirect_to,omitempty" json:"redirect_to,omitempty"`
	Enhancers  []string `yaml:"enhancers,omitempty" json:"enhancers,omitempty"`
}

type compiledEntry struct {
	info      RouteInfo
	segments  []string
	page      http.Handler
	enhancers []Enhancer
	handler   http.Handler
}

// RouteTable is an immutable ordered list of entries. The first entry that
// matches a path wins; declaration order is the only precedence rule.
type RouteTable struct {
	entries []compiledEntry
}

// NewRouteTable validates entries and composes each page with its enhancers.
func NewRouteTable(entries ...Entry) (*RouteTable, error) {
	rt := &RouteTable{entries: make([]compiledEntry, 0, len(entries))}
	seen := make(map[string]bool, len(entries))

	for i, e := range entries {
		p := e.pattern()
		if p == "" || !strings.HasPrefix(p, "/") {
			return nil, invalidRoute(i, p, "pattern must start with '/'")
		}
		segs := splitPath(p)
		if err := checkSegments(segs); err != "" {
			return nil, invalidRoute(i, p, err)
		}
		key := strings.Join(segs, "/")
		if seen[key] {
			return nil, invalidRoute(i, p, "duplicate pattern")
		}
		seen[key] = true

		ce := compiledEntry{
			info:     RouteInfo{Pattern: p, Exact: e.isExact()},
			segments: segs,
		}
		switch v := e.(type) {
		case RouteEntry:
			if v.Page == nil {
				return nil, invalidRoute(i, p, "route has no page")
			}
			ce.page = v.Page
			ce.enhancers = append([]Enhancer(nil), v.Enhancers...)
			ce.handler = Compose(v.Page, v.Enhancers...)
			ce.info.Enhancers = Describe(v.Enhancers)
		case RedirectEntry:
			if v.To == "" {
				return nil, invalidRoute(i, p, "redirect has no target")
			}
			if len(segs) == 0 {
				for j := range rt.entries {
					if matchSegments(rt.entries[j].segments, nil, rt.entries[j].info.Exact) != nil {
						return nil, invalidRoute(i, p, "root redirect is shadowed by "+rt.entries[j].info.Pattern)
					}
				}
			}
			ce.info.RedirectTo = v.To
		default:
			return nil, invalidRoute(i, p, "unsupported entry type")
		}
		rt.entries = append(rt.entries, ce)
	}
	return rt, nil
}

// MustRouteTable is NewRouteTable for static tables; it panics on error.
func MustRouteTable(entries ...Entry) *RouteTable {
	rt, err := NewRouteTable(entries...)
	if err != nil {
		panic(err)
	}
	return rt
}

// WrapPages returns a copy of the table in which every page runs inside wrap,
// beneath its enhancers. Redirects and listings are unchanged.
func (rt *RouteTable) WrapPages(wrap func(http.Handler) http.Handler) *RouteTable {
	out := &RouteTable{entries: make([]compiledEntry, len(rt.entries))}
	for i, e := range rt.entries {
		if e.page != nil {
			e.handler = Compose(wrap(e.page), e.enhancers...)
		}
		out.entries[i] = e
	}
	return out
}

// Resolve scans the table in declaration order. path is the escaped request
// path: it is split first and each segment is then unescaped, so "%2F" stays
// inside its segment. Empty segments and malformed escapes match nothing.
func (rt *RouteTable) Resolve(path string) Resolution {
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		return Resolution{Kind: ResolvedNotFound}
	}
	segs, ok := decodeSegments(splitPath(path))
	if !ok {
		return Resolution{Kind: ResolvedNotFound}
	}

	for i := range rt.entries {
		e := &rt.entries[i]
		params := matchSegments(e.segments, segs, e.info.Exact)
		if params == nil {
			continue
		}
		if e.info.RedirectTo != "" {
			return Resolution{Kind: ResolvedRedirect, Pattern: e.info.Pattern, RedirectTo: e.info.RedirectTo}
		}
		return Resolution{
			Kind:      ResolvedPage,
			Pattern:   e.info.Pattern,
			Params:    params,
			Handler:   e.handler,
			Enhancers: e.info.Enhancers,
		}
	}
	return Resolution{Kind: ResolvedNotFound}
}

// Routes lists the entries in declaration order.
func (rt *RouteTable) Routes() []RouteInfo {
	out := make([]RouteInfo, len(rt.entries))
	for i, e := range rt.entries {
		out[i] = e.info
		out[i].Enhancers = append([]string(nil), e.info.Enhancers...)
	}
	return out
}

// splitPath drops the leading slash and one trailing slash. "/" yields no
// segments; "//" yields one empty segment.
func splitPath(p string) []string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(p, "/"), "/")
}

func decodeSegments(raw []string) ([]string, bool) {
	out := make([]string, len(raw))
	for i, seg := range raw {
		if seg == "" {
			return nil, false
		}
		v, err := url.PathUnescape(seg)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func checkSegments(segs []string) string {
	names := make(map[string]bool)
	for _, s := range segs {
		if s == "" {
			return "empty path segment"
		}
		if strings.HasPrefix(s, ":") {
			name := s[1:]
			if name == "" {
				return "parameter without a name"
			}
			if names[name] {
				return "parameter " + name + " bound twice"
			}
			names[name] = true
		}
	}
	return ""
}

// matchSegments returns the bound parameters (non-nil, possibly empty) when
// pattern matches path, and nil otherwise.
func matchSegments(pattern, path []string, exact bool) RouteParams {
	if exact && len(path) != len(pattern) {
		return nil
	}
	if len(path) < len(pattern) {
		return nil
	}
	params := RouteParams{}
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			if path[i] == "" {
				return nil
			}
			params[seg[1:]] = path[i]
			continue
		}
		if seg != path[i] {
			return nil
		}
	}
	return params
}

func invalidRoute(index int, pattern, reason string) error {
	return errors.NewWithStatus(errors.CodeValidationFailed, "invalid route table: "+reason, http.StatusInternalServerError).
		WithDetail("index", index).
		WithDetail("pattern", pattern)
}
