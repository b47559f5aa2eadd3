package cache_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/bankbot-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	val, ok := c.Get("key1")
	require.True(t, ok, "expected key to exist")
	assert.Equal(t, "value1", val)
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	_, ok := c.Get("nonexistent")
	assert.False(t, ok, "expected cache miss for nonexistent key")
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	assert.False(t, ok, "expected cache entry to be expired")
	assert.Equal(t, 0, c.Len())
}

func TestCache_SetRefreshesTTL(t *testing.T) {
	c := cache.New[string](150 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "v1")
	time.Sleep(100 * time.Millisecond)
	c.Set("key1", "v2")
	time.Sleep(100 * time.Millisecond)

	val, ok := c.Get("key1")
	require.True(t, ok)
	assert.Equal(t, "v2", val)
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	c.Delete("key1")
	c.Delete("never-set")

	_, ok := c.Get("key1")
	assert.False(t, ok, "expected key to be deleted")
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := cache.New[int](5 * time.Minute)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			c.Set(key, i)
			v, ok := c.Get(key)
			assert.True(t, ok)
			assert.Equal(t, i, v)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, c.Len())
}
