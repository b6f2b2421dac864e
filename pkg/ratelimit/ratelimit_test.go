package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestTokenLimiterWaitsForRefill(t *testing.T) {
	l := NewTokenLimiterWithPeriod(2, 150*time.Millisecond)
	ctx := context.Background()

	assert.NoError(t, l.Wait(ctx, 1))
	assert.NoError(t, l.Wait(ctx, 1))
	assert.Equal(t, 0, l.GetRemaining())

	start := time.Now()
	assert.NoError(t, l.Wait(ctx, 1))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestTokenLimiterContextCancel(t *testing.T) {
	l := NewTokenLimiterWithPeriod(1, time.Hour)
	assert.NoError(t, l.Wait(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx, 1), context.DeadlineExceeded)
}

func TestTokenLimiterUnlimited(t *testing.T) {
	var l *TokenLimiter
	assert.NoError(t, l.Wait(context.Background(), 10))
	assert.NoError(t, NewTokenLimiter(0).Wait(context.Background(), 10))
}

func TestHostLimiterReusesPerHost(t *testing.T) {
	l := NewHostLimiter(rate.Limit(1), 1, 0)
	a := l.limiter("data.example.com")
	b := l.limiter("DATA.example.com")
	c := l.limiter("other.org")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, l.Len())
}

func TestHostLimiterForgetsIdleHosts(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	l := NewHostLimiter(rate.Limit(1), 1, time.Minute)
	l.now = func() time.Time { return now }

	l.limiter("a.example.com")
	now = now.Add(2 * time.Minute)
	l.limiter("b.example.com")

	assert.Equal(t, 1, l.Len())
}

func TestHostLimiterWait(t *testing.T) {
	var nilLimiter *HostLimiter
	assert.NoError(t, nilLimiter.Wait(context.Background(), "any"))

	l := NewHostLimiter(rate.Inf, 1, time.Minute)
	assert.NoError(t, l.Wait(context.Background(), "example.com"))
}
