// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	redisrepo "github.com/k-t-corp/broccoli-console/internal/repository/redis"
)

// SessionStore loads and stores the browser session.
type SessionStore interface {
	// Get returns nil, nil when the request carries no live session.
	Get(r *http.Request) (*Session, error)
	Save(r *http.Request, w http.ResponseWriter, session *Session) error
	Delete(r *http.Request, w http.ResponseWriter) error
}

// Session is a browser session.
type Session struct {
	ID        string
	Username  string
	CreatedAt time.Time
	ExpiresAt time.Time
	Values    map[string]interface{}
}

// NewSession returns an unsaved session for username.
func NewSession(username string) *Session {
	return &Session{Username: username, Values: make(map[string]interface{})}
}

// CookieConfig holds session cookie settings wired from app config.
type CookieConfig struct {
	Name     string
	Secure   bool          // force Secure; otherwise set only over TLS
	SameSite http.SameSite // default Lax
	Domain   string
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.Name == "" {
		c.Name = CookieSession
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteLaxMode
	}
	return c
}

func (c CookieConfig) set(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure || r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: c.SameSite,
		MaxAge:   maxAge,
	})
}

func (c CookieConfig) read(r *http.Request) string {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// ============================================================================
// Redis-backed store
// ============================================================================

// WebSessionStore adapts redis.SessionStore to SessionStore.
type WebSessionStore struct {
	redisStore *redisrepo.SessionStore
	ttl        time.Duration
	cookie     CookieConfig
}

// NewWebSessionStore creates a session store backed by Redis.
func NewWebSessionStore(redisStore *redisrepo.SessionStore, cookie CookieConfig) *WebSessionStore {
	return &WebSessionStore{
		redisStore: redisStore,
		ttl:        redisStore.TTL(),
		cookie:     cookie.withDefaults(),
	}
}

// Get loads the session named by the request cookie and extends its TTL.
func (s *WebSessionStore) Get(r *http.Request) (*Session, error) {
	id := s.cookie.read(r)
	if id == "" {
		return nil, nil
	}

	ctx := r.Context()
	rs, err := s.redisStore.Get(ctx, id)
	if errors.Is(err, redisrepo.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	_ = s.redisStore.Touch(ctx, id)

	return &Session{
		ID:        rs.ID,
		Username:  rs.Username,
		CreatedAt: rs.CreatedAt,
		ExpiresAt: rs.ExpiresAt,
		Values:    rs.Data,
	}, nil
}

// Save creates the session when needed, stores its values and sets the cookie.
func (s *WebSessionStore) Save(r *http.Request, w http.ResponseWriter, session *Session) error {
	if session == nil {
		return nil
	}
	ctx := r.Context()

	exists := false
	if session.ID != "" {
		ok, err := s.redisStore.Exists(ctx, session.ID)
		if err != nil {
			return err
		}
		exists = ok
	}
	if !exists {
		rs, err := s.redisStore.Create(ctx, session.Username, r.UserAgent(), clientIP(r))
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		session.ID = rs.ID
		session.CreatedAt = rs.CreatedAt
		session.ExpiresAt = rs.ExpiresAt
	}

	err := s.redisStore.Update(ctx, session.ID, func(rs *redisrepo.Session) {
		rs.Data = session.Values
	})
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	s.cookie.set(w, r, session.ID, int(s.ttl.Seconds()))
	return nil
}

// Delete removes the session and clears the cookie.
func (s *WebSessionStore) Delete(r *http.Request, w http.ResponseWriter) error {
	var err error
	if id := s.cookie.read(r); id != "" {
		err = s.redisStore.Delete(r.Context(), id)
	}
	s.cookie.set(w, r, "", -1)
	return err
}

// ============================================================================
// In-process store
// ============================================================================

// MemorySessionStore keeps sessions in process memory. Sessions do not
// survive a restart and are not shared between replicas.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	cookie   CookieConfig
	now      func() time.Time
}

// NewMemorySessionStore creates an in-process store.
func NewMemorySessionStore(ttl time.Duration, cookie CookieConfig) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		cookie:   cookie.withDefaults(),
		now:      time.Now,
	}
}

// Get returns a copy of the stored session.
func (s *MemorySessionStore) Get(r *http.Request) (*Session, error) {
	id := s.cookie.read(r)
	if id == "" {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	now := s.now()
	if now.After(stored.ExpiresAt) {
		delete(s.sessions, id)
		return nil, nil
	}
	stored.ExpiresAt = now.Add(s.ttl)
	return copySession(stored), nil
}

// Save stores a copy of session and sets the cookie.
func (s *MemorySessionStore) Save(r *http.Request, w http.ResponseWriter, session *Session) error {
	if session == nil {
		return nil
	}

	s.mu.Lock()
	now := s.now()
	if _, ok := s.sessions[session.ID]; session.ID == "" || !ok {
		session.ID = uuid.NewString()
		session.CreatedAt = now
	}
	session.ExpiresAt = now.Add(s.ttl)
	s.sessions[session.ID] = copySession(session)
	s.mu.Unlock()

	s.cookie.set(w, r, session.ID, int(s.ttl.Seconds()))
	return nil
}

// Delete removes the session and clears the cookie.
func (s *MemorySessionStore) Delete(r *http.Request, w http.ResponseWriter) error {
	if id := s.cookie.read(r); id != "" {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	}
	s.cookie.set(w, r, "", -1)
	return nil
}

// Purge drops expired sessions and returns how many were removed. Get only
// expires the session it is asked for, so abandoned sessions need this.
func (s *MemorySessionStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, stored := range s.sessions {
		if now.After(stored.ExpiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func copySession(in *Session) *Session {
	out := *in
	out.Values = make(map[string]interface{}, len(in.Values))
	for k, v := range in.Values {
		out.Values[k] = v
	}
	return &out
}

// clientIP extracts the client address for session bookkeeping.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
