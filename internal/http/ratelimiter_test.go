package httpapi

import (
	"testing"
	"time"
)

func TestTokenBucketRefillsOverPeriod(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	bucket := NewTokenBucket(time.Minute, 2, func() time.Time { return now })

	if !bucket.Allow() || !bucket.Allow() {
		t.Fatal("expected burst of two to be allowed")
	}
	if bucket.Allow() {
		t.Fatal("expected third call to be denied")
	}
	if wait := bucket.RetryAfter(); wait != 30*time.Second {
		t.Fatalf("unexpected retry after %s", wait)
	}

	now = now.Add(20 * time.Second)
	if bucket.Allow() {
		t.Fatal("expected partial refill to deny")
	}

	now = now.Add(10 * time.Second)
	if !bucket.Allow() {
		t.Fatal("expected a token after half the period")
	}
	if bucket.Allow() {
		t.Fatal("expected only one refilled token")
	}

	now = now.Add(time.Hour)
	if !bucket.Allow() || !bucket.Allow() || bucket.Allow() {
		t.Fatal("expected refill to stop at capacity")
	}
}

func TestTokenBucketDisabled(t *testing.T) {
	bucket := NewTokenBucket(0, 0, nil)
	for i := 0; i < 10; i++ {
		if !bucket.Allow() {
			t.Fatal("disabled bucket should allow")
		}
	}
	if bucket.RetryAfter() != 0 {
		t.Fatal("disabled bucket should never ask to wait")
	}
}
