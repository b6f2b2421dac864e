package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenLimiter hands out a fixed number of tokens per refill period.
type TokenLimiter struct {
	sync.Mutex
	capacity     int // tokens per period
	remaining    int
	refillPeriod time.Duration
	lastRefill   time.Time
}

func NewTokenLimiter(tokensPerMinute int) *TokenLimiter {
	return NewTokenLimiterWithPeriod(tokensPerMinute, time.Minute)
}

func NewTokenLimiterWithPeriod(tokens int, period time.Duration) *TokenLimiter {
	return &TokenLimiter{
		capacity:     tokens,
		remaining:    tokens,
		refillPeriod: period,
		lastRefill:   time.Now(),
	}
}

// Wait blocks until tokens are available or ctx is done. A limiter with no
// capacity never blocks.
func (l *TokenLimiter) Wait(ctx context.Context, tokens int) error {
	if l == nil || l.capacity <= 0 {
		return nil
	}
	for {
		l.refill()

		l.Lock()
		if l.remaining >= tokens {
			l.remaining -= tokens
			l.Unlock()
			return nil
		}
		l.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (l *TokenLimiter) refill() {
	l.Lock()
	defer l.Unlock()

	now := time.Now()
	if now.Sub(l.lastRefill) >= l.refillPeriod {
		l.remaining = l.capacity
		l.lastRefill = now
	}
}

func (l *TokenLimiter) GetRemaining() int {
	l.Lock()
	defer l.Unlock()
	return l.remaining
}
