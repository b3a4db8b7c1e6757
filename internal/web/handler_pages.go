// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/k-t-corp/broccoli-console/internal/backend"
	"github.com/k-t-corp/broccoli-console/internal/pkg/errors"
	"github.com/k-t-corp/broccoli-console/internal/web/templates/pages"
	"github.com/k-t-corp/broccoli-console/internal/web/templates/types"
)

// ============================================================================
// Mod views
// ============================================================================

// ModViewsPage lists the moderation views.
func (h *Handler) ModViewsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client := h.client(r)

	title, err := client.InstanceTitle(ctx)
	if err != nil {
		h.backendError(w, r, "Mod Views", err)
		return
	}
	boards, err := client.Boards(ctx)
	if err != nil {
		h.backendError(w, r, "Mod Views", err)
		return
	}
	h.render(w, r, http.StatusOK, "Mod Views", pages.ModViews(strings.TrimSpace(title), boards))
}

// ModViewPage renders one moderation view.
func (h *Handler) ModViewPage(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")

	board, err := h.client(r).RenderBoard(r.Context(), name)
	if err != nil {
		h.backendError(w, r, name, err)
		return
	}
	h.render(w, r, http.StatusOK, name, pages.ModView(name, board))
}

// ModViewCallback posts a document to a moderation view callback.
func (h *Handler) ModViewCallback(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	target := "/modView/" + url.PathEscape(name)

	if err := r.ParseForm(); err != nil {
		h.actionError(w, r, target, errors.InvalidInput("invalid form data"))
		return
	}
	callbackID := strings.TrimSpace(r.FormValue("callback_id"))
	if callbackID == "" {
		h.actionError(w, r, target, errors.InvalidInput("callback id is required"))
		return
	}
	document, err := parseJSONObject("document", r.FormValue("document"))
	if err != nil {
		h.actionError(w, r, target, err)
		return
	}

	if err := h.client(r).CallbackBoard(r.Context(), callbackID, document); err != nil {
		h.actionError(w, r, target, err)
		return
	}
	h.flashRedirect(w, r, FlashSuccess, "Callback "+callbackID+" sent", target)
}

// ============================================================================
// Workers
// ============================================================================

// WorkersPage lists the workers.
func (h *Handler) WorkersPage(w http.ResponseWriter, r *http.Request) {
	workers, err := h.client(r).Workers(r.Context())
	if err != nil {
		h.backendError(w, r, "Workers", err)
		return
	}
	h.render(w, r, http.StatusOK, "Workers", pages.Workers(workers))
}

// CreateWorkerPage shows the create form on GET and adds the worker on POST.
func (h *Handler) CreateWorkerPage(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		h.createWorker(w, r)
		return
	}
	h.renderCreateWorker(w, r, http.StatusOK, pages.WorkerForm{})
}

func (h *Handler) renderCreateWorker(w http.ResponseWriter, r *http.Request, status int, form pages.WorkerForm) {
	modules, err := h.client(r).WorkerModules(r.Context())
	if err != nil {
		h.backendError(w, r, "Create worker", err)
		return
	}
	h.render(w, r, status, "Create worker", pages.CreateWorker(modules, form))
}

func (h *Handler) createWorker(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.createWorkerFailed(w, r, pages.WorkerForm{}, errors.InvalidInput("invalid form data"))
		return
	}
	form := pages.WorkerForm{
		ModuleName:      strings.TrimSpace(r.FormValue("module_name")),
		Args:            r.FormValue("args"),
		IntervalSeconds: strings.TrimSpace(r.FormValue("interval_seconds")),
	}

	fields := map[string]string{}
	if form.ModuleName == "" {
		fields["module_name"] = "module is required"
	}
	args, err := parseJSONObject("args", form.Args)
	if err != nil {
		fields["args"] = describeError(err)
	}
	interval, err := parseNonNegative(form.IntervalSeconds)
	if err != nil {
		fields["interval_seconds"] = err.Error()
	}
	if len(fields) > 0 {
		h.createWorkerFailed(w, r, form, errors.ValidationFailed(fields))
		return
	}

	id, err := h.client(r).AddWorker(r.Context(), backend.NewWorker{
		ModuleName:      form.ModuleName,
		Args:            args,
		IntervalSeconds: interval,
	})
	if err != nil {
		if errors.IsCode(err, errors.CodeUnauthorized) {
			h.backendError(w, r, "Create worker", err)
			return
		}
		h.createWorkerFailed(w, r, form, err)
		return
	}

	h.logger.Info("worker added", "worker_id", id, "module", form.ModuleName)
	h.flashRedirect(w, r, FlashSuccess, "Worker "+id+" added", "/workers/view")
}

// createWorkerFailed shows the form again with the submitted values.
func (h *Handler) createWorkerFailed(w http.ResponseWriter, r *http.Request, form pages.WorkerForm, err error) {
	ctx := context.WithValue(r.Context(), ContextKeyFlash, &types.FlashData{Type: FlashError, Message: describeError(err)})
	h.renderCreateWorker(w, r.WithContext(ctx), errors.HTTPStatusCode(err), form)
}

// WorkerPage shows one worker with its executor choices and metadata.
func (h *Handler) WorkerPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := pathParam(r, "workerId")
	client := h.client(r)

	worker, err := client.Worker(ctx, id)
	if err != nil {
		h.backendError(w, r, id, err)
		return
	}
	executors, err := client.Executors(ctx)
	if err != nil {
		h.backendError(w, r, id, err)
		return
	}
	metadata, err := client.WorkerMetadata(ctx, id)
	if err != nil {
		h.backendError(w, r, id, err)
		return
	}

	h.render(w, r, http.StatusOK, id, pages.Worker(pages.WorkerData{
		Worker:    *worker,
		Executors: executors,
		Metadata:  metadata,
	}))
}

// WorkerRemove deletes a worker.
func (h *Handler) WorkerRemove(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "workerId")
	if err := h.client(r).RemoveWorker(r.Context(), id); err != nil {
		h.actionError(w, r, "/workers/view", err)
		return
	}
	h.logger.Info("worker removed", "worker_id", id)
	h.flashRedirect(w, r, FlashSuccess, "Worker "+id+" removed", "/workers/view")
}

// WorkerUpdateInterval changes a worker's interval.
func (h *Handler) WorkerUpdateInterval(w http.ResponseWriter, r *http.Request) {
	h.workerAction(w, r, "interval_seconds", "Interval updated",
		func(ctx context.Context, c *backend.AuthorizedClient, id, value string) error {
			seconds, err := parseNonNegative(value)
			if err != nil {
				return errors.InvalidInput(err.Error())
			}
			return c.UpdateIntervalSeconds(ctx, id, seconds)
		})
}

// WorkerUpdateErrorResiliency changes how many consecutive failures a worker
// tolerates.
func (h *Handler) WorkerUpdateErrorResiliency(w http.ResponseWriter, r *http.Request) {
	h.workerAction(w, r, "error_resiliency", "Error resiliency updated",
		func(ctx context.Context, c *backend.AuthorizedClient, id, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return errors.InvalidInput("error resiliency must be an integer")
			}
			return c.UpdateErrorResiliency(ctx, id, n)
		})
}

// WorkerUpdateExecutor moves a worker to another executor.
func (h *Handler) WorkerUpdateExecutor(w http.ResponseWriter, r *http.Request) {
	h.workerAction(w, r, "executor_slug", "Executor updated",
		func(ctx context.Context, c *backend.AuthorizedClient, id, value string) error {
			if value == "" {
				return errors.InvalidInput("executor is required")
			}
			return c.UpdateExecutor(ctx, id, value)
		})
}

// WorkerSetMetadata replaces a worker's metadata.
func (h *Handler) WorkerSetMetadata(w http.ResponseWriter, r *http.Request) {
	h.workerAction(w, r, "metadata", "Metadata saved",
		func(ctx context.Context, c *backend.AuthorizedClient, id, value string) error {
			metadata, err := parseJSONObject("metadata", value)
			if err != nil {
				return err
			}
			return c.SetWorkerMetadata(ctx, id, metadata)
		})
}

type workerActionFunc func(ctx context.Context, c *backend.AuthorizedClient, id, value string) error

// workerAction reads one form field, applies fn and returns to the worker page.
func (h *Handler) workerAction(w http.ResponseWriter, r *http.Request, field, success string, fn workerActionFunc) {
	id := pathParam(r, "workerId")
	target := "/worker/" + url.PathEscape(id)

	if err := r.ParseForm(); err != nil {
		h.actionError(w, r, target, errors.InvalidInput("invalid form data"))
		return
	}
	if err := fn(r.Context(), h.client(r), id, strings.TrimSpace(r.FormValue(field))); err != nil {
		h.actionError(w, r, target, err)
		return
	}
	h.logger.Info("worker updated", "worker_id", id, "field", field)
	h.flashRedirect(w, r, FlashSuccess, success, target)
}

// ============================================================================
// Jobs
// ============================================================================

// JobsPage lists one-off job modules and runs.
func (h *Handler) JobsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client := h.client(r)

	modules, err := client.JobModules(ctx)
	if err != nil {
		h.backendError(w, r, "Jobs", err)
		return
	}
	runs, err := client.JobRuns(ctx)
	if err != nil {
		h.backendError(w, r, "Jobs", err)
		return
	}
	h.render(w, r, http.StatusOK, "Jobs", pages.Jobs(modules, runs))
}

// JobRun starts a one-off job. The jobs page shows no messages, so the run
// list is the only feedback.
func (h *Handler) JobRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.backendError(w, r, "Jobs", errors.InvalidInput("invalid form data"))
		return
	}
	module := strings.TrimSpace(r.FormValue("module_name"))
	if module == "" {
		h.backendError(w, r, "Jobs", errors.InvalidInput("module is required"))
		return
	}
	args, err := parseJSONObject("args", r.FormValue("args"))
	if err != nil {
		h.backendError(w, r, "Jobs", err)
		return
	}
	if err := h.client(r).RunJob(r.Context(), module, args); err != nil {
		h.backendError(w, r, "Jobs", err)
		return
	}
	h.logger.Info("job started", "module", module)
	http.Redirect(w, r, "/jobs/view", http.StatusSeeOther)
}

// ============================================================================
// Form helpers
// ============================================================================

// parseJSONObject decodes a JSON object form value. Blank input is an empty
// object.
func parseJSONObject(field, raw string) (map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return nil, errors.InvalidInput(field + " must be a JSON object")
	}
	return out, nil
}

func parseNonNegative(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return n, nil
}

// describeError turns an error into a one-line message for a flash.
func describeError(err error) string {
	ae, ok := errors.GetAppError(err)
	if !ok {
		return err.Error()
	}
	if ae.Code == errors.CodeValidationFailed && len(ae.Details) > 0 {
		parts := make([]string, 0, len(ae.Details))
		for _, k := range sortedKeys(ae.Details) {
			parts = append(parts, fmt.Sprintf("%s: %v", k, ae.Details[k]))
		}
		return strings.Join(parts, "; ")
	}
	return ae.Message
}
