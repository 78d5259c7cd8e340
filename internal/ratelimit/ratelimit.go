package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter caps new connections globally and per client address.
type RateLimiter struct {
	mu        sync.Mutex
	global    *rate.Limiter
	clients   map[string]*clientLimiter
	perClient rate.Limit
	burst     int
}

// NewRateLimiter creates a limiter allowing globalConnLimit connections per
// second overall and perClientConnLimit per client. A limit of 0 disables
// that check. burst is the bucket size for both.
func NewRateLimiter(globalConnLimit, perClientConnLimit float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		clients:   make(map[string]*clientLimiter),
		perClient: rate.Limit(perClientConnLimit),
		burst:     burst,
	}
	if globalConnLimit > 0 {
		rl.global = rate.NewLimiter(rate.Limit(globalConnLimit), burst)
	}
	return rl
}

// AllowConnection checks if a connection is allowed for the given client.
// A client over its own limit is refused without spending global capacity,
// and a client token is handed back when the global limit refuses.
func (rl *RateLimiter) AllowConnection(client string) bool {
	if rl.perClient <= 0 {
		return rl.global == nil || rl.global.Allow()
	}
	now := time.Now()
	rl.mu.Lock()
	cl, ok := rl.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.perClient, rl.burst)}
		rl.clients[client] = cl
	}
	cl.lastSeen = now
	rl.mu.Unlock()

	r := cl.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false
	}
	if r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		return false
	}
	if rl.global != nil && !rl.global.AllowN(now, 1) {
		r.CancelAt(now)
		return false
	}
	return true
}

// CleanupIdle drops per-client limiters unused for longer than maxIdle and
// returns how many were removed.
func (rl *RateLimiter) CleanupIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for client, cl := range rl.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.clients, client)
			removed++
		}
	}
	return removed
}

// Run sweeps idle client limiters every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval, maxIdle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.CleanupIdle(maxIdle)
		}
	}
}
