package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	c.Set(ctx, GenerateKey(PrefixConnection, "t1", "stripe"), "a", time.Minute)
	c.Set(ctx, GenerateKey(PrefixConnection, "t1", "nomod"), "b", time.Minute)
	c.Set(ctx, GenerateKey(PrefixApp, "t1"), "c", time.Minute)

	v, ok := c.Get(ctx, "connection:v1:t1:stripe")
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	c.DeleteByPrefix(ctx, GenerateKey(PrefixConnection, "t1"))
	_, ok = c.Get(ctx, "connection:v1:t1:stripe")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "connection:v1:t1:nomod")
	assert.False(t, ok)

	_, ok = c.Get(ctx, "app:v1:t1")
	assert.True(t, ok)

	c.Flush(ctx)
	_, ok = c.Get(ctx, "app:v1:t1")
	assert.False(t, ok)
}
