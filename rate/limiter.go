package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key. A bucket refills one token per
// interval up to burst; buckets idle for longer than expiry are dropped by
// Run.
type Limiter struct {
	burst    int
	every    rate.Limit
	expiry   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLimiter(burst int, interval, expiry time.Duration) *Limiter {
	return &Limiter{
		burst:    burst,
		every:    rate.Every(interval),
		expiry:   expiry,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Allow reports whether key may proceed now and spends a token if so.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Run drops idle buckets until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	tick := l.expiry / 2
	if tick <= 0 {
		tick = time.Minute
	}

	t := time.NewTicker(tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.evict()
		}
	}
}

func (l *Limiter) evict() int {
	cutoff := l.now().Add(-l.expiry)

	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
			n++
		}
	}
	return n
}
