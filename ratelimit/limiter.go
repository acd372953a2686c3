package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter enforces a per-source token bucket. The effective request rate
// for a source never exceeds its configured ceiling, even with
// concurrent callers; ReportThrottled halves the refill rate for a
// cool-down window when the target pushes back.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	// injected for deterministic tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type bucket struct {
	refillPerSec   float64 // configured ceiling
	capacity       float64
	tokens         float64
	last           time.Time
	throttledUntil time.Time
	cooldown       time.Duration
}

func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SetRate registers a source budget in requests per minute, with the
// cool-down applied after a throttle signal.
func (l *Limiter) SetRate(source string, perMinute int, cooldown time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if perMinute <= 0 {
		perMinute = 1
	}
	l.buckets[source] = &bucket{
		refillPerSec: float64(perMinute) / 60.0,
		capacity:     1, // no bursts: one token buys one request
		tokens:       1,
		last:         l.now(),
		cooldown:     cooldown,
	}
}

// Acquire blocks until the source's budget permits another request, or
// the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context, source string) error {
	for {
		wait, err := l.take(source)
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// take consumes a token if available, otherwise returns how long to wait
// before trying again.
func (l *Limiter) take(source string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[source]
	if !ok {
		return 0, fmt.Errorf("no rate configured for source %q", source)
	}

	now := l.now()
	rate := b.refillPerSec
	if now.Before(b.throttledUntil) {
		rate /= 2
	}

	elapsed := now.Sub(b.last).Seconds()
	b.tokens += elapsed * rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens -= 1
		return 0, nil
	}

	deficit := 1 - b.tokens
	wait := time.Duration(deficit / rate * float64(time.Second))
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, nil
}

// ReportThrottled is called when the target answered with a rate-limit
// or challenge signal; it halves the refill rate until the cool-down
// window elapses and drains any banked token.
func (l *Limiter) ReportThrottled(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[source]
	if !ok {
		return
	}
	b.throttledUntil = l.now().Add(b.cooldown)
	b.tokens = 0
}

// Throttled reports whether the source is currently in a cool-down window.
func (l *Limiter) Throttled(source string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[source]
	if !ok {
		return false
	}
	return l.now().Before(b.throttledUntil)
}
