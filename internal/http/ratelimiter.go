package httpapi

import (
	"sync"
	"time"
)

// TokenBucket refills capacity tokens every period and spends one per allowed call.
// Credit is tracked as elapsed time so refills stay exact.
type TokenBucket struct {
	period   time.Duration
	interval time.Duration // credit one token costs
	now      func() time.Time

	mu     sync.Mutex
	credit time.Duration
	last   time.Time
}

// NewTokenBucket returns a limiter permitting bursts of capacity calls that
// refill fully once per period. A non-positive period or capacity disables it.
func NewTokenBucket(period time.Duration, capacity int, timeSource func() time.Time) *TokenBucket {
	if period <= 0 || capacity <= 0 {
		return &TokenBucket{}
	}
	if timeSource == nil {
		timeSource = time.Now
	}
	return &TokenBucket{
		period:   period,
		interval: period / time.Duration(capacity),
		now:      timeSource,
		credit:   period,
		last:     timeSource(),
	}
}

// Allow spends a token when one is available.
func (b *TokenBucket) Allow() bool {
	if b == nil || b.interval <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.credit < b.interval {
		return false
	}
	b.credit -= b.interval
	return true
}

// RetryAfter reports how long until the next token becomes available.
func (b *TokenBucket) RetryAfter() time.Duration {
	if b == nil || b.interval <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.credit >= b.interval {
		return 0
	}
	return b.interval - b.credit
}

func (b *TokenBucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.last)
	b.last = now
	if elapsed <= 0 {
		return
	}
	b.credit += elapsed
	if b.credit > b.period {
		b.credit = b.period
	}
}
