// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/k-t-corp/broccoli-console/internal/pkg/errors"
	"github.com/k-t-corp/broccoli-console/internal/testutil"
)

func TestScheduler_Add_Validation(t *testing.T) {
	s := New(testutil.NewTestLogger(t))
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name string
		job  Job
		code string
	}{
		{"missing name", Job{Schedule: "@every 1m", Run: noop}, errors.CodeBadRequest},
		{"missing run", Job{Name: "x", Schedule: "@every 1m"}, errors.CodeBadRequest},
		{"bad schedule", Job{Name: "x", Schedule: "every minute", Run: noop}, errors.CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Add(tt.job)
			if !errors.IsCode(err, tt.code) {
				t.Errorf("Add() = %v, want code %s", err, tt.code)
			}
		})
	}

	if err := s.Add(Job{Name: "purge", Schedule: "*/5 * * * *", Run: noop}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := s.Add(Job{Name: "purge", Schedule: "@hourly", Run: noop}); !errors.IsCode(err, errors.CodeConflict) {
		t.Errorf("duplicate Add() = %v, want conflict", err)
	}
	if _, ok := s.Jobs()["purge"]; !ok {
		t.Error("Jobs() missing purge")
	}
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(testutil.NewTestLogger(t))
	var runs atomic.Int32
	_ = s.Add(Job{Name: "count", Schedule: "@hourly", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})
	_ = s.Add(Job{Name: "fail", Schedule: "@hourly", Run: func(context.Context) error {
		return fmt.Errorf("boom")
	}})

	if err := s.RunNow("count"); err != nil {
		t.Errorf("RunNow(count) = %v", err)
	}
	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", runs.Load())
	}
	if err := s.RunNow("fail"); err == nil {
		t.Error("RunNow(fail) should return the job error")
	}
	if err := s.RunNow("missing"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Errorf("RunNow(missing) = %v, want not found", err)
	}
}

func TestScheduler_Timeout(t *testing.T) {
	s := New(testutil.NewTestLogger(t))
	_ = s.Add(Job{Name: "slow", Schedule: "@hourly", Timeout: 10 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	done := make(chan error, 1)
	go func() { done <- s.RunNow("slow") }()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected deadline error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job timeout not applied")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(testutil.NewTestLogger(t))
	started := make(chan struct{})
	var once atomic.Bool
	_ = s.Add(Job{Name: "tick", Schedule: "@every 1s", Run: func(ctx context.Context) error {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		<-ctx.Done()
		return nil
	}})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); !errors.IsCode(err, errors.CodeConflict) {
		t.Errorf("second Start() = %v, want conflict", err)
	}

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}

	// Stop cancels the running job, so it returns promptly.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop() = %v, want nil", err)
	}
}
