// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

// Package testutil provides shared test helpers used across the console
// test suite: a silent logger, backend-style access tokens and an in-process
// Redis. It must not import console packages other than pkg/logger, so any
// package's tests can use it.
package testutil

import (
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	goredis "github.com/redis/go-redis/v9"

	"github.com/k-t-corp/broccoli-console/internal/pkg/logger"
)

// TokenSecret signs tokens minted by Token. The console never verifies the
// signature, it only reads exp.
const TokenSecret = "test-secret"

// NewTestLogger returns a logger that discards all output. It never fails.
func NewTestLogger(t testing.TB) *logger.Logger {
	t.Helper()
	log, err := logger.NewWithOutput("error", "console", io.Discard)
	if err != nil {
		t.Fatalf("testutil.NewTestLogger: %v", err)
	}
	return log
}

// Token mints an HS256 access token for subject expiring at exp, shaped like
// the ones the Broccoli server issues from /auth.
func Token(t testing.TB, subject string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
	}).SignedString([]byte(TokenSecret))
	if err != nil {
		t.Fatalf("testutil.Token: %v", err)
	}
	return tok
}

// NewRedis starts a miniredis server and a client for it. Both are closed
// when the test ends.
func NewRedis(t testing.TB) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}
