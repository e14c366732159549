package handlers

import (
	"sync"
	"time"
)

const defaultMaxVisitors = 10000

// RateLimiter is a fixed-window counter per client key. Windows expire lazily
// on access; the map never grows past maxKeys.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    int
	window   time.Duration
	maxKeys  int
	now      func() time.Time
}

type visitor struct {
	count int
	start time.Time
}

func NewRateLimiter(limit int, window time.Duration, maxKeys int) *RateLimiter {
	if maxKeys <= 0 {
		maxKeys = defaultMaxVisitors
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		window:   window,
		maxKeys:  maxKeys,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if ok && now.Sub(v.start) >= rl.window {
		v.count, v.start = 0, now
	}
	if !ok {
		if len(rl.visitors) >= rl.maxKeys {
			rl.prune(now)
		}
		v = &visitor{start: now}
		rl.visitors[key] = v
	}
	v.count++
	return v.count <= rl.limit
}

// prune drops expired windows, then the oldest one if the map is still full.
func (rl *RateLimiter) prune(now time.Time) {
	for k, v := range rl.visitors {
		if now.Sub(v.start) >= rl.window {
			delete(rl.visitors, k)
		}
	}
	if len(rl.visitors) < rl.maxKeys {
		return
	}
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, v := range rl.visitors {
		if oldestKey == "" || v.start.Before(oldest) {
			oldestKey, oldest = k, v.start
		}
	}
	delete(rl.visitors, oldestKey)
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}
