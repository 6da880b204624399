package usagecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gdelt-article-cache/internal/usagemeter"
)

func TestCache_MemoryFallback_SetGet(t *testing.T) {
	c := New(nil, 50*time.Millisecond)
	ctx := context.Background()

	_, ok := c.Get(ctx)
	assert.False(t, ok)

	stats := usagemeter.Stats{Month: "2026-01", BytesScanned: 42}
	c.Set(ctx, stats)

	got, ok := c.Get(ctx)
	assert.True(t, ok)
	assert.Equal(t, stats, got)
}

func TestCache_MemoryFallback_Expires(t *testing.T) {
	c := New(nil, 10*time.Millisecond)
	ctx := context.Background()

	c.Set(ctx, usagemeter.Stats{Month: "2026-01"})
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get(ctx)
	assert.False(t, ok)
}

func TestCache_Invalidate(t *testing.T) {
	c := New(nil, time.Minute)
	ctx := context.Background()

	c.Set(ctx, usagemeter.Stats{Month: "2026-01"})
	c.Invalidate(ctx)

	_, ok := c.Get(ctx)
	assert.False(t, ok)
}
