package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCache struct{ err error }

func (f failingCache) GetBytes(context.Context, string) ([]byte, bool, error) {
	return nil, false, f.err
}

func (f failingCache) SetBytes(context.Context, string, []byte, time.Duration) error {
	return f.err
}

func TestLayeredCachePromotesL2Hits(t *testing.T) {
	ctx := context.Background()
	l1, l2 := NewTTLCache(), NewTTLCache()
	require.NoError(t, l2.SetBytes(ctx, "plugins", []byte("v"), 0))

	lc := NewLayeredCache(l1, l2, time.Minute)
	b, ok, err := lc.GetBytes(ctx, "plugins")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)
	assert.Equal(t, 1, l1.Len())
}

func TestLayeredCacheWritesBothLayers(t *testing.T) {
	ctx := context.Background()
	l1, l2 := NewTTLCache(), NewTTLCache()
	lc := NewLayeredCache(l1, l2, time.Minute)

	require.NoError(t, lc.SetBytes(ctx, "k", []byte("v"), time.Hour))
	_, ok, _ := l1.GetBytes(ctx, "k")
	assert.True(t, ok)
	_, ok, _ = l2.GetBytes(ctx, "k")
	assert.True(t, ok)
}

func TestLayeredCacheL2FailureSkipsL1(t *testing.T) {
	ctx := context.Background()
	l1 := NewTTLCache()
	boom := errors.New("redis down")
	lc := NewLayeredCache(l1, failingCache{err: boom}, time.Minute)

	assert.ErrorIs(t, lc.SetBytes(ctx, "k", []byte("v"), time.Hour), boom)
	assert.Equal(t, 0, l1.Len())

	_, ok, err := lc.GetBytes(ctx, "k")
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
}
