package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type hostEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// HostLimiter paces requests per remote host. Hosts idle for longer than
// the idle window are forgotten on the next lookup.
type HostLimiter struct {
	mu    sync.Mutex
	hosts map[string]*hostEntry
	r     rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time
}

func NewHostLimiter(r rate.Limit, burst int, idle time.Duration) *HostLimiter {
	return &HostLimiter{
		hosts: make(map[string]*hostEntry),
		r:     r,
		burst: burst,
		idle:  idle,
		now:   time.Now,
	}
}

func (l *HostLimiter) limiter(host string) *rate.Limiter {
	host = strings.ToLower(host)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.idle > 0 {
		for key, entry := range l.hosts {
			if key != host && now.Sub(entry.lastSeen) > l.idle {
				delete(l.hosts, key)
			}
		}
	}

	entry, ok := l.hosts[host]
	if !ok {
		entry = &hostEntry{limiter: rate.NewLimiter(l.r, l.burst)}
		l.hosts[host] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Wait blocks until host may be called again. A nil limiter never blocks.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil {
		return nil
	}
	return l.limiter(host).Wait(ctx)
}

// Len reports how many hosts are tracked.
func (l *HostLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}
