// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package backend

import "encoding/json"

// statusResponse is the envelope the server uses for mutations and errors.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	statusResponse
	AccessToken string `json:"access_token"`
}

type threadCountResponse struct {
	ThreadCount int `json:"thread_count"`
}

// Worker is a scheduled worker as listed by the server.
type Worker struct {
	WorkerID            string                 `json:"worker_id"`
	ModuleName          string                 `json:"module_name"`
	Args                map[string]interface{} `json:"args"`
	IntervalSeconds     int                    `json:"interval_seconds"`
	ErrorResiliency     int                    `json:"error_resiliency"`
	ExecutorSlug        string                 `json:"executor_slug"`
	LastExecutedSeconds float64                `json:"last_executed_seconds"`
}

// NewWorker is the payload for adding a worker.
type NewWorker struct {
	ModuleName      string                 `json:"module_name"`
	Args            map[string]interface{} `json:"args"`
	IntervalSeconds int                    `json:"interval_seconds"`
}

type addWorkerResponse struct {
	statusResponse
	WorkerID string `json:"worker_id"`
}

// Board is a moderation view definition.
type Board struct {
	BoardID    string     `json:"board_id"`
	BoardQuery BoardQuery `json:"board_query"`
}

// BoardQuery selects and projects documents for a moderation view.
type BoardQuery struct {
	Q           map[string]interface{} `json:"q"`
	Limit       int                    `json:"limit,omitempty"`
	Sort        map[string]interface{} `json:"sort,omitempty"`
	Projections []Projection           `json:"projections"`
}

// Projection is one column of a moderation view.
type Projection struct {
	Name string `json:"name"`
}

// RenderedBoard is a moderation view with its rows.
type RenderedBoard struct {
	BoardQuery        BoardQuery                   `json:"board_query"`
	Payload           []map[string]json.RawMessage `json:"payload"`
	CountWithoutLimit int                          `json:"count_without_limit"`
}

// JobRun is one execution of a one-off job.
type JobRun struct {
	JobID      string                 `json:"job_id"`
	ModuleName string                 `json:"module_name"`
	Args       map[string]interface{} `json:"args"`
	State      string                 `json:"state"`
	Drained    []string               `json:"drained_log_lines"`
}
