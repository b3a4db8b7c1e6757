// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2024-2026 broccoli-console contributors
// https://github.com/k-t-corp/broccoli-console

package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

// newTestClient starts an in-memory miniredis server and returns a Client
// connected to it. The server is closed when the test finishes.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, _ := newTestClientWithMR(t)
	return client
}

// newTestClientWithMR also returns the miniredis server so tests can move
// its clock.
func newTestClientWithMR(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewFromRedis(rdb, "test"), mr
}
