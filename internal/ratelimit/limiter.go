// Package ratelimit provides per-key token bucket rate limiting for the
// MCP tools. Event ingestion is high-volume and gets a generous budget;
// the inspection tools are limited harder since nothing legitimate polls
// them in a tight loop.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limiter is a per-key token bucket. Each key refills at the configured
// rate up to the burst size. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64 // bucket capacity, also the initial fill
	nowFunc func() time.Time
}

type bucket struct {
	tokens   float64
	refilled time.Time
}

// NewLimiter creates a limiter refilling at rate tokens/second with the
// given burst capacity.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   float64(burst),
		nowFunc: time.Now,
	}
}

// Allow consumes one token for key, reporting whether the request fits in
// the budget. A key's first request always succeeds.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, refilled: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.refilled).Seconds(); elapsed > 0 {
		b.tokens = min(l.burst, b.tokens+l.rate*elapsed)
		b.refilled = now
	}

	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}

// ToolLimiters maps tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters builds the default per-tool budgets.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"ingest_event":   NewLimiter(50, 200), // bulk replay friendly
		"recommend_next": NewLimiter(5, 20),
		"learner_state":  NewLimiter(5, 20),
		"model_stats":    NewLimiter(1, 5),
	}
}

// Check consumes one token for the named tool. Tools without a configured
// limiter are never limited.
func Check(limiters ToolLimiters, tool string) error {
	limiter, ok := limiters[tool]
	if !ok {
		return nil
	}
	if !limiter.Allow(tool) {
		return fmt.Errorf("rate limit exceeded for %s, try again shortly", tool)
	}
	return nil
}
