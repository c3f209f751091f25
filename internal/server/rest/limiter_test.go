package rest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiter(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	l := NewIPRateLimiter(3)
	l.now = func() time.Time { return now }

	for range 3 {
		ok, _ := l.Allow("198.51.100.7")
		assert.True(t, ok)
	}
	ok, wait := l.Allow("198.51.100.7")
	assert.False(t, ok)
	assert.InDelta(t, float64(20*time.Second), float64(wait), float64(time.Millisecond))

	ok, _ = l.Allow("203.0.113.9")
	assert.True(t, ok, "clients have separate buckets")

	now = now.Add(21 * time.Second)
	ok, _ = l.Allow("198.51.100.7")
	assert.True(t, ok, "a token comes back after twenty seconds")
}

func TestIPRateLimiter_EvictsIdleClients(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	l := NewIPRateLimiter(1)
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	assert.Len(t, l.clients, 2)

	now = now.Add(limiterIdleTTL + time.Second)
	l.Allow("c")
	assert.Len(t, l.clients, 1)
}

func TestIPRateLimiter_Disabled(t *testing.T) {
	assert.Nil(t, NewIPRateLimiter(0))
}
