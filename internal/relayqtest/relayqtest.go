// Package relayqtest provides the shared Redis-backed test fixture for
// package relayq's integration tests: skip when REDIS_TEST_ADDR is unset,
// dial a real client otherwise, and flush a unique key prefix per test so
// parallel test runs don't collide.
package relayqtest

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// Addr returns REDIS_TEST_ADDR, skipping the calling test if it is unset.
func Addr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping integration test")
	}
	return addr
}

// Prefix returns a key prefix unique to this test, plus a cleanup that
// deletes every key under it once the test completes.
func Prefix(t *testing.T, rc *redis.Client) string {
	t.Helper()
	prefix := fmt.Sprintf("relayqtest:%s:%d", t.Name(), time.Now().UnixNano())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		iter := rc.Scan(ctx, 0, prefix+"*", 0).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if len(keys) > 0 {
			_ = rc.Del(ctx, keys...).Err()
		}
	})

	return prefix
}

// Client dials REDIS_TEST_ADDR, skipping the calling test if it is unset,
// and registers a cleanup that closes the connection.
func Client(t *testing.T) *redis.Client {
	t.Helper()
	rc := redis.NewClient(&redis.Options{Addr: Addr(t)})
	t.Cleanup(func() { _ = rc.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		t.Skipf("could not reach REDIS_TEST_ADDR: %v", err)
	}
	return rc
}
