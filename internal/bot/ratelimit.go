package bot

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a per bot ceiling on Telegram API calls over a
// sliding one minute window.
type RateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	sent   []time.Time
}

// NewRateLimiter creates a limiter allowing maxPerMinute calls. A zero or
// negative ceiling disables limiting.
func NewRateLimiter(maxPerMinute int) *RateLimiter {
	return &RateLimiter{max: maxPerMinute, window: time.Minute}
}

// Wait blocks until a send slot is free or the context is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if l.max <= 0 {
		return nil
	}

	for {
		l.mu.Lock()
		now := time.Now()
		l.prune(now)
		if len(l.sent) < l.max {
			l.sent = append(l.sent, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.sent[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Allow reports whether a slot is free right now and claims it if so.
func (l *RateLimiter) Allow() bool {
	if l.max <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.prune(now)
	if len(l.sent) >= l.max {
		return false
	}
	l.sent = append(l.sent, now)
	return true
}

// prune drops send records older than the window. Callers hold the lock.
func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.sent) && l.sent[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.sent = append(l.sent[:0], l.sent[i:]...)
	}
}
