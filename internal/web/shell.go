// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/k-t-corp/broccoli-console/internal/pkg/logger"
)

// ThreadCountUnloaded is shown until the thread count fetch succeeds.
const ThreadCountUnloaded = -1

// ThreadCounter fetches the backend's worker thread count.
type ThreadCounter interface {
	GetThreadCount(ctx context.Context) (int, error)
}

// CredentialStore drops the stored access token.
type CredentialStore interface {
	UnsetAuth(w http.ResponseWriter, r *http.Request) error
}

// ShellState is the data owned by the navigation shell.
type ShellState struct {
	ThreadCount int  `json:"thread_count"`
	Loaded      bool `json:"loaded"`
}

// ShellOptions configures a Shell.
type ShellOptions struct {
	Title        string
	FetchTimeout time.Duration
	// RenderWait is how long a page render waits for a pending fetch.
	// Zero renders with whatever state the shell holds.
	RenderWait time.Duration
	Logger     *logger.Logger
}

// Shell is the console frame controller. Each mount issues exactly one thread
// count fetch; a result arriving after Unmount or a later Mount is dropped.
type Shell struct {
	counter ThreadCounter
	creds   CredentialStore
	title   string
	timeout time.Duration
	logger  *logger.Logger

	mu         sync.RWMutex
	state      ShellState
	mounted    bool
	generation uint64
	cancel     context.CancelFunc
	settled    chan struct{}
}

// NewShell creates an unmounted shell.
func NewShell(counter ThreadCounter, creds CredentialStore, opts ShellOptions) *Shell {
	if opts.Title == "" {
		opts.Title = "Broccoli"
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	closed := make(chan struct{})
	close(closed)
	return &Shell{
		counter: counter,
		creds:   creds,
		title:   opts.Title,
		timeout: opts.FetchTimeout,
		logger:  opts.Logger.Named("shell"),
		state:   ShellState{ThreadCount: ThreadCountUnloaded},
		settled: closed,
	}
}

// Title returns the navigation bar title.
func (s *Shell) Title() string {
	return s.title
}

// Mount resets the state to the sentinel and starts the fetch. Calling Mount
// on a mounted shell does nothing.
func (s *Shell) Mount(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mounted {
		return
	}
	s.mounted = true
	s.generation++
	s.state = ShellState{ThreadCount: ThreadCountUnloaded}

	fctx, cancel := context.WithTimeout(ctx, s.timeout)
	s.cancel = cancel
	settled := make(chan struct{})
	s.settled = settled

	go s.fetch(fctx, cancel, s.generation, settled)
}

func (s *Shell) fetch(ctx context.Context, cancel context.CancelFunc, gen uint64, settled chan struct{}) {
	defer cancel()
	defer close(settled)

	n, err := s.counter.GetThreadCount(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mounted || s.generation != gen {
		s.logger.Debug("dropping thread count from stale mount", "error", err)
		return
	}
	if err != nil {
		s.logger.Warn("failed to load thread count", "error", err)
		return
	}
	s.state = ShellState{ThreadCount: n, Loaded: true}
}

// Unmount detaches the shell and cancels an in-flight fetch.
func (s *Shell) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mounted {
		return
	}
	s.mounted = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// State returns a snapshot of the shell state.
func (s *Shell) State() ShellState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Settled is closed once the current mount's fetch has finished, whatever its
// outcome. Before the first Mount it is already closed.
func (s *Shell) Settled() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settled
}

// Logout drops the stored credentials. It never touches the thread count.
func (s *Shell) Logout(w http.ResponseWriter, r *http.Request) error {
	return s.creds.UnsetAuth(w, r)
}
