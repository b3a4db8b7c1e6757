// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

// Package scheduler runs the console's periodic housekeeping on a cron
// schedule.
package scheduler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/k-t-corp/broccoli-console/internal/pkg/errors"
	"github.com/k-t-corp/broccoli-console/internal/pkg/logger"
)

// JobFunc is one run of a scheduled job. The context is cancelled when the
// scheduler stops or the job exceeds its timeout.
type JobFunc func(ctx context.Context) error

// Job describes a recurring task.
type Job struct {
	Name string
	// Standard five-field cron expression or a descriptor such as "@every 5m".
	Schedule string
	Timeout  time.Duration
	Run      JobFunc
}

type entry struct {
	id  cron.EntryID
	job Job
}

// Scheduler owns a cron instance and the jobs registered on it.
type Scheduler struct {
	cron   *cron.Cron
	logger *logger.Logger

	mu      sync.RWMutex
	running bool
	entries map[string]entry

	// lifecycleCtx is the context passed to Start. Job contexts derive from
	// it so they are cancelled during shutdown.
	lifecycleCtx context.Context
	cancel       context.CancelFunc
}

// New creates a stopped scheduler.
func New(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("scheduler")
	cl := cronLogger{log: log}
	// Panics inside a job are recovered and logged by cron.
	cronInstance := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		),
	)
	return &Scheduler{
		cron:         cronInstance,
		logger:       log,
		entries:      make(map[string]entry),
		lifecycleCtx: context.Background(),
	}
}

// Add registers job. Names are unique; the schedule is validated here.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New(errors.CodeBadRequest, "scheduled job needs a name and a run func")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[job.Name]; ok {
		return errors.Newf(errors.CodeConflict, "scheduled job %q already registered", job.Name)
	}

	id, err := s.cron.AddFunc(job.Schedule, func() { s.execute(job) })
	if err != nil {
		return errors.WrapWithStatus(err, errors.CodeBadRequest, "invalid schedule for "+job.Name, http.StatusBadRequest)
	}
	s.entries[job.Name] = entry{id: id, job: job}
	s.logger.Debug("scheduled job registered", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// Jobs returns the registered job names with their next run time.
func (s *Scheduler) Jobs() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, e := range s.entries {
		out[name] = s.cron.Entry(e.id).Next
	}
	return out
}

// Start begins firing jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New(errors.CodeConflict, "scheduler already running")
	}
	s.running = true
	s.lifecycleCtx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("starting scheduler", "jobs", len(s.entries))
	s.cron.Start()
	return nil
}

// Stop cancels running jobs and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("stopping scheduler")
	cancel()
	cronCtx := s.cron.Stop()

	select {
	case <-cronCtx.Done():
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timeout")
		return ctx.Err()
	}
}

// RunNow executes the named job synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return errors.NotFound("scheduled job " + name)
	}
	return s.runJob(e.job)
}

func (s *Scheduler) execute(job Job) {
	_ = s.runJob(job)
}

func (s *Scheduler) runJob(job Job) error {
	s.mu.RLock()
	parent := s.lifecycleCtx
	s.mu.RUnlock()

	ctx := parent
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		s.logger.Warn("scheduled job failed", "job", job.Name, "duration", time.Since(start), "error", err)
		return err
	}
	s.logger.Debug("scheduled job completed", "job", job.Name, "duration", time.Since(start))
	return nil
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append(keysAndValues, "error", err)...)
}
