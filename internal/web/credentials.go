// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/k-t-corp/broccoli-console/internal/web/templates/types"
)

// SessionCredentials keeps the backend access token in the browser session.
type SessionCredentials struct {
	store SessionStore
	now   func() time.Time
}

// NewSessionCredentials creates a credential store over sessions.
func NewSessionCredentials(store SessionStore) *SessionCredentials {
	return &SessionCredentials{store: store, now: time.Now}
}

// SetAuth starts a fresh session holding token.
func (c *SessionCredentials) SetAuth(w http.ResponseWriter, r *http.Request, username, token string) error {
	// A new id on login prevents session fixation.
	_ = c.store.Delete(r, w)
	session := NewSession(username)
	session.Values[sessionKeyToken] = token
	return c.store.Save(r, w, session)
}

// Token returns the stored access token, or "" without one.
func (c *SessionCredentials) Token(r *http.Request) (string, error) {
	session := SessionFromContext(r.Context())
	if session == nil {
		var err error
		session, err = c.store.Get(r)
		if err != nil || session == nil {
			return "", err
		}
	}
	tok, _ := session.Values[sessionKeyToken].(string)
	return tok, nil
}

// UnsetAuth deletes the session and its token.
func (c *SessionCredentials) UnsetAuth(w http.ResponseWriter, r *http.Request) error {
	return c.store.Delete(r, w)
}

// TokenExpired reports whether token is malformed or past its exp claim.
// The signature is not checked: the backend verifies it on every call.
func (c *SessionCredentials) TokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return true
	}
	return exp != nil && !c.now().Before(exp.Time)
}

// ============================================================================
// Flash messages
// ============================================================================

// Flash types.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// SetFlash stores a one-shot message in the session. Sessions survive a JSON
// round trip in Redis, so the message is kept as a plain map.
func SetFlash(w http.ResponseWriter, r *http.Request, store SessionStore, flashType, message string) error {
	session, err := store.Get(r)
	if err != nil {
		return fmt.Errorf("SetFlash: get session: %w", err)
	}
	if session == nil {
		return nil
	}
	if session.Values == nil {
		session.Values = make(map[string]interface{})
	}
	session.Values[sessionKeyFlash] = map[string]interface{}{"type": flashType, "message": message}
	return store.Save(r, w, session)
}

// popFlash removes and returns the session's flash message.
func popFlash(session *Session) *types.FlashData {
	raw, ok := session.Values[sessionKeyFlash]
	if !ok {
		return nil
	}
	delete(session.Values, sessionKeyFlash)

	switch v := raw.(type) {
	case map[string]interface{}:
		t, _ := v["type"].(string)
		m, _ := v["message"].(string)
		if m == "" {
			return nil
		}
		return &types.FlashData{Type: t, Message: m}
	case *types.FlashData:
		return v
	default:
		return nil
	}
}

// withSession caches session on the request context.
func withSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, ContextKeySession, session)
}
