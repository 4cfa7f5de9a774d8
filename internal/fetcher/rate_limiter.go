package fetcher

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds in-flight requests per host and spaces request starts
// so a host sees at most rpm requests per minute.
type RateLimiter struct {
	maxConcurrent int
	interval      time.Duration
	hosts         map[string]*hostLimiter
	mu            sync.Mutex
}

type hostLimiter struct {
	sem  chan struct{}
	next time.Time
	mu   sync.Mutex
}

func NewRateLimiter(maxConcurrent, rpm int) *RateLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	var interval time.Duration
	if rpm > 0 {
		interval = time.Minute / time.Duration(rpm)
	}
	return &RateLimiter{
		maxConcurrent: maxConcurrent,
		interval:      interval,
		hosts:         make(map[string]*hostLimiter),
	}
}

// Acquire blocks until a request to host may start. The returned func must
// be called when the request is done.
func (rl *RateLimiter) Acquire(ctx context.Context, host string) (func(), error) {
	rl.mu.Lock()
	limiter, exists := rl.hosts[host]
	if !exists {
		limiter = &hostLimiter{sem: make(chan struct{}, rl.maxConcurrent)}
		rl.hosts[host] = limiter
	}
	rl.mu.Unlock()

	select {
	case limiter.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-limiter.sem }

	limiter.mu.Lock()
	now := time.Now()
	start := limiter.next
	if start.Before(now) {
		start = now
	}
	limiter.next = start.Add(rl.interval)
	limiter.mu.Unlock()

	if wait := time.Until(start); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}
