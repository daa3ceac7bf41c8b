package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterBurstThenRefill(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("BTCUSDT", 2, 1))
	assert.True(t, l.Allow("BTCUSDT", 2, 1))
	assert.False(t, l.Allow("BTCUSDT", 2, 1))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("BTCUSDT", 2, 1))
	assert.False(t, l.Allow("BTCUSDT", 2, 1))
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	l := New()
	assert.True(t, l.Allow("a", 1, 0))
	assert.False(t, l.Allow("a", 1, 0))
	assert.True(t, l.Allow("b", 1, 0))

	l.Forget("a")
	assert.True(t, l.Allow("a", 1, 0))
}
