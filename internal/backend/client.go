// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

// Package backend is the HTTP client for the Broccoli server API consumed by
// the console.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/k-t-corp/broccoli-console/internal/observability"
	"github.com/k-t-corp/broccoli-console/internal/pkg/errors"
	"github.com/k-t-corp/broccoli-console/internal/pkg/logger"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 10 << 20

// Config holds the client configuration.
type Config struct {
	BaseURL string // e.g. "http://localhost:5000"
	Timeout time.Duration
}

// Client talks to one Broccoli server. Endpoints under /apiInternal need a
// token and are reached through As.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a client. A zero timeout defaults to 10s.
func NewClient(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.Named("backend"),
	}
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Authenticate exchanges admin credentials for an access token.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	var resp authResponse
	err := c.do(ctx, "auth", http.MethodPost, "/auth", "", authRequest{Username: username, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", errors.New(errors.CodeBackend, "auth response carried no access token")
	}
	return resp.AccessToken, nil
}

// GetThreadCount returns the server's active thread count. No auth needed.
func (c *Client) GetThreadCount(ctx context.Context) (int, error) {
	var resp threadCountResponse
	if err := c.do(ctx, "thread_count", http.MethodGet, "/debug/threadCount", "", nil, &resp); err != nil {
		return 0, err
	}
	return resp.ThreadCount, nil
}

// As returns a view of the client that sends token as a bearer credential.
func (c *Client) As(token string) *AuthorizedClient {
	return &AuthorizedClient{client: c, token: token}
}

// AuthorizedClient calls the token-protected /apiInternal endpoints.
type AuthorizedClient struct {
	client *Client
	token  string
}

// InstanceTitle returns the title configured on the server.
func (a *AuthorizedClient) InstanceTitle(ctx context.Context) (string, error) {
	var title string
	if err := a.call(ctx, "instance_title", http.MethodGet, "/apiInternal/instanceTitle", nil, &title); err != nil {
		return "", err
	}
	return strings.TrimSpace(title), nil
}

// WorkerModules lists the module names workers can be created from.
func (a *AuthorizedClient) WorkerModules(ctx context.Context) ([]string, error) {
	var modules []string
	err := a.call(ctx, "worker_modules", http.MethodGet, "/apiInternal/worker/modules", nil, &modules)
	return modules, err
}

// Workers lists all workers.
func (a *AuthorizedClient) Workers(ctx context.Context) ([]Worker, error) {
	var workers []Worker
	err := a.call(ctx, "workers", http.MethodGet, "/apiInternal/worker", nil, &workers)
	return workers, err
}

// Worker returns a single worker by id. The server has no single-worker
// endpoint, so the list is filtered.
func (a *AuthorizedClient) Worker(ctx context.Context, workerID string) (*Worker, error) {
	workers, err := a.Workers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range workers {
		if workers[i].WorkerID == workerID {
			return &workers[i], nil
		}
	}
	return nil, errors.NotFound("worker")
}

// AddWorker creates a worker and returns its id.
func (a *AuthorizedClient) AddWorker(ctx context.Context, w NewWorker) (string, error) {
	if w.Args == nil {
		w.Args = map[string]interface{}{}
	}
	var resp addWorkerResponse
	if err := a.call(ctx, "add_worker", http.MethodPost, "/apiInternal/worker", w, &resp); err != nil {
		return "", err
	}
	return resp.WorkerID, nil
}

// RemoveWorker deletes a worker.
func (a *AuthorizedClient) RemoveWorker(ctx context.Context, workerID string) error {
	return a.call(ctx, "remove_worker", http.MethodDelete, "/apiInternal/worker/"+url.PathEscape(workerID), nil, nil)
}

// UpdateIntervalSeconds changes how often a worker runs.
func (a *AuthorizedClient) UpdateIntervalSeconds(ctx context.Context, workerID string, seconds int) error {
	if seconds < 0 {
		return errors.InvalidInput("interval seconds must not be negative")
	}
	path := fmt.Sprintf("/apiInternal/worker/%s/intervalSeconds/%d", url.PathEscape(workerID), seconds)
	return a.call(ctx, "update_interval_seconds", http.MethodPut, path, nil, nil)
}

// UpdateErrorResiliency sets how many consecutive errors a worker tolerates.
// Negative values are allowed.
func (a *AuthorizedClient) UpdateErrorResiliency(ctx context.Context, workerID string, resiliency int) error {
	path := "/apiInternal/worker/" + url.PathEscape(workerID) + "/errorResiliency/" + strconv.Itoa(resiliency)
	return a.call(ctx, "update_error_resiliency", http.MethodPut, path, nil, nil)
}

// UpdateExecutor moves a worker to another executor.
func (a *AuthorizedClient) UpdateExecutor(ctx context.Context, workerID, executorSlug string) error {
	path := "/apiInternal/worker/" + url.PathEscape(workerID) + "/executor/" + url.PathEscape(executorSlug)
	return a.call(ctx, "update_executor", http.MethodPut, path, nil, nil)
}

// Executors lists executor slugs.
func (a *AuthorizedClient) Executors(ctx context.Context) ([]string, error) {
	var slugs []string
	err := a.call(ctx, "executors", http.MethodGet, "/apiInternal/executor", nil, &slugs)
	return slugs, err
}

// WorkerMetadata returns a worker's metadata document.
func (a *AuthorizedClient) WorkerMetadata(ctx context.Context, workerID string) (map[string]interface{}, error) {
	metadata := map[string]interface{}{}
	err := a.call(ctx, "worker_metadata", http.MethodGet, "/apiInternal/worker/"+url.PathEscape(workerID)+"/metadata", nil, &metadata)
	return metadata, err
}

// SetWorkerMetadata replaces a worker's metadata document.
func (a *AuthorizedClient) SetWorkerMetadata(ctx context.Context, workerID string, metadata map[string]interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return a.call(ctx, "set_worker_metadata", http.MethodPost, "/apiInternal/worker/"+url.PathEscape(workerID)+"/metadata", metadata, nil)
}

// Boards lists moderation views.
func (a *AuthorizedClient) Boards(ctx context.Context) ([]Board, error) {
	var boards []Board
	err := a.call(ctx, "boards", http.MethodGet, "/apiInternal/boards", nil, &boards)
	return boards, err
}

// RenderBoard renders one moderation view.
func (a *AuthorizedClient) RenderBoard(ctx context.Context, boardID string) (*RenderedBoard, error) {
	var board RenderedBoard
	if err := a.call(ctx, "render_board", http.MethodGet, "/apiInternal/renderBoard/"+url.PathEscape(boardID), nil, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

// CallbackBoard posts a document to a board callback.
func (a *AuthorizedClient) CallbackBoard(ctx context.Context, callbackID string, document map[string]interface{}) error {
	return a.call(ctx, "callback_board", http.MethodPost, "/apiInternal/callbackBoard/"+url.PathEscape(callbackID), document, nil)
}

// JobModules lists one-off job modules.
func (a *AuthorizedClient) JobModules(ctx context.Context) ([]string, error) {
	var modules []string
	err := a.call(ctx, "job_modules", http.MethodGet, "/apiInternal/oneOffJob/modules", nil, &modules)
	return modules, err
}

// RunJob starts a one-off job.
func (a *AuthorizedClient) RunJob(ctx context.Context, moduleName string, args map[string]interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	body := map[string]interface{}{"module_name": moduleName, "args": args}
	return a.call(ctx, "run_job", http.MethodPost, "/apiInternal/oneOffJob/run", body, nil)
}

// JobRuns lists one-off job runs.
func (a *AuthorizedClient) JobRuns(ctx context.Context) ([]JobRun, error) {
	var runs []JobRun
	err := a.call(ctx, "job_runs", http.MethodGet, "/apiInternal/oneOffJob/run", nil, &runs)
	return runs, err
}

func (a *AuthorizedClient) call(ctx context.Context, op, method, path string, body, out interface{}) error {
	if a.token == "" {
		return errors.Unauthorized("not logged in")
	}
	return a.client.do(ctx, op, method, path, a.token, body, out)
}

// do performs one request. A string out receives the raw body; any other
// non-nil out is JSON-decoded.
func (c *Client) do(ctx context.Context, op, method, path, token string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to marshal request body")
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	ctx, span := observability.StartBackendSpan(ctx, op, req)
	req = req.WithContext(ctx)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.EndBackendSpan(span, 0, err)
		c.logger.Warn("backend request failed", "op", op, "method", method, "path", path, "error", err)
		return errors.WrapWithStatus(err, errors.CodeServiceUnavailable, "broccoli server unreachable", http.StatusServiceUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	c.logger.Debug("backend request",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	if err != nil {
		observability.EndBackendSpan(span, resp.StatusCode, err)
		return errors.Wrap(err, errors.CodeBackend, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := statusError(resp.StatusCode, raw)
		observability.EndBackendSpan(span, resp.StatusCode, apiErr)
		return apiErr
	}
	observability.EndBackendSpan(span, resp.StatusCode, nil)

	switch dst := out.(type) {
	case nil:
		return nil
	case *string:
		*dst = string(raw)
		return nil
	default:
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.Wrap(err, errors.CodeBackend, "failed to decode response")
		}
		return nil
	}
}

// statusError maps a non-2xx response to an AppError carrying the server's
// message when the body is the usual {"status":"error"} envelope.
func statusError(status int, raw []byte) *errors.AppError {
	message := http.StatusText(status)
	var env statusResponse
	if json.Unmarshal(raw, &env) == nil && env.Message != "" {
		message = env.Message
	} else if msg := jwtErrorMessage(raw); msg != "" {
		message = msg
	}

	switch status {
	case http.StatusUnauthorized, http.StatusUnprocessableEntity:
		return errors.Unauthorized(message).WithHTTPStatus(http.StatusUnauthorized)
	case http.StatusBadRequest:
		return errors.InvalidInput(message)
	case http.StatusNotFound:
		return errors.NewWithStatus(errors.CodeNotFound, message, http.StatusNotFound)
	default:
		return errors.NewWithStatus(errors.CodeBackend, message, http.StatusBadGateway).WithDetail("upstream_status", status)
	}
}

// jwtErrorMessage reads the {"msg": ...} body the server's token layer
// answers with.
func jwtErrorMessage(raw []byte) string {
	var body struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	return body.Msg
}
