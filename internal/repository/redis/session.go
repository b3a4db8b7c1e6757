// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when a session id has no live document.
var ErrSessionNotFound = errors.New("session not found")

// Session is the stored form of a console login session.
type Session struct {
	ID           string                 `json:"id"`
	Username     string                 `json:"username"`
	UserAgent    string                 `json:"user_agent,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	LastAccessAt time.Time              `json:"last_access_at"`
	ExpiresAt    time.Time              `json:"expires_at"`
	Data         map[string]interface{} `json:"data"`
}

// SessionStore keeps sessions as JSON documents with a TTL.
type SessionStore struct {
	client *Client
	ttl    time.Duration
}

// NewSessionStore creates a store whose sessions live for ttl after their
// last write or touch.
func NewSessionStore(client *Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// TTL returns the session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Create stores a new session with a random id.
func (s *SessionStore) Create(ctx context.Context, username, userAgent, ipAddress string) (*Session, error) {
	now := time.Now().UTC()
	session := &Session{
		ID:           uuid.NewString(),
		Username:     username,
		UserAgent:    userAgent,
		IPAddress:    ipAddress,
		CreatedAt:    now,
		LastAccessAt: now,
		ExpiresAt:    now.Add(s.ttl),
		Data:         make(map[string]interface{}),
	}
	if err := s.save(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Get loads a session. Missing or expired sessions return ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	raw, err := s.client.rdb.Get(ctx, s.client.SessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if time.Now().After(session.ExpiresAt) {
		_ = s.Delete(ctx, sessionID)
		return nil, ErrSessionNotFound
	}
	if session.Data == nil {
		session.Data = make(map[string]interface{})
	}
	return &session, nil
}

// Exists reports whether the session key is present.
func (s *SessionStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.rdb.Exists(ctx, s.client.SessionKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n > 0, nil
}

// Update applies fn to the stored session and writes it back.
func (s *SessionStore) Update(ctx context.Context, sessionID string, fn func(*Session)) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	fn(session)
	return s.save(ctx, session)
}

// Touch extends the session lifetime and records the access time.
func (s *SessionStore) Touch(ctx context.Context, sessionID string) error {
	return s.Update(ctx, sessionID, func(session *Session) {
		now := time.Now().UTC()
		session.LastAccessAt = now
		session.ExpiresAt = now.Add(s.ttl)
	})
}

// SetData sets a single data value.
func (s *SessionStore) SetData(ctx context.Context, sessionID, key string, value interface{}) error {
	return s.Update(ctx, sessionID, func(session *Session) {
		session.Data[key] = value
	})
}

// GetData returns a single data value, or nil when the key is absent.
func (s *SessionStore) GetData(ctx context.Context, sessionID, key string) (interface{}, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Data[key], nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.rdb.Del(ctx, s.client.SessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SessionStore) save(ctx context.Context, session *Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = s.ttl
	}
	return s.client.rdb.Set(ctx, s.client.SessionKey(session.ID), raw, ttl).Err()
}
