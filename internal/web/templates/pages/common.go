// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

// Package pages holds the main-region content of each console page. Pages
// are written in templ; run "templ generate" after editing a .templ file.
package pages

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/k-t-corp/broccoli-console/internal/backend"
	"github.com/k-t-corp/broccoli-console/internal/web/templates/types"
)

// LoginData feeds the login form.
type LoginData struct {
	Username  string
	Error     string
	ReturnURL string
}

// WorkerForm carries the create-worker form values back on validation errors.
type WorkerForm struct {
	ModuleName      string
	Args            string
	IntervalSeconds string
}

// WorkerData feeds the worker detail page.
type WorkerData struct {
	Worker    backend.Worker
	Executors []string
	Metadata  map[string]interface{}
}

func workerPath(id string) string {
	return "/worker/" + url.PathEscape(id)
}

func modViewPath(name string) string {
	return "/modView/" + url.PathEscape(name)
}

// options turns values into select options, marking selected.
func options(values []string, selected string) []types.Option {
	out := make([]types.Option, 0, len(values))
	for _, v := range values {
		out = append(out, types.Option{Value: v, Label: v, Selected: v == selected})
	}
	return out
}

func lastExecuted(seconds float64) string {
	if seconds <= 0 {
		return "never"
	}
	return time.Unix(int64(seconds), 0).UTC().Format(time.RFC3339)
}

func showing(board *backend.RenderedBoard) string {
	return fmt.Sprintf("Showing %d of %d", len(board.Payload), board.CountWithoutLimit)
}

// orEmptyObject shows "{}" for an empty JSON field.
func orEmptyObject(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}

// prettyJSON renders v indented, or "{}" when it cannot be encoded.
func prettyJSON(v interface{}) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// cellText shows JSON strings unquoted and everything else as JSON.
func cellText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
