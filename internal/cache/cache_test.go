package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSetGetDelete(t *testing.T) {
	c := New(0, 0)
	c.Set("k", "v", time.Minute)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestExpiryIsLazy(t *testing.T) {
	c := New(0, 0)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.Set("k", 42, time.Minute)
	clock = clock.Add(2 * time.Minute)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry removed on access")
}

func TestDefaultTTL(t *testing.T) {
	c := New(0, time.Hour)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.Set("k", "v", 0)
	clock = clock.Add(59 * time.Minute)
	_, ok := c.Get("k")
	assert.True(t, ok)

	clock = clock.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestEvictionDropsOldestTenth(t *testing.T) {
	c := New(100, time.Hour)
	clock := time.Now()
	c.now = func() time.Time { return clock }

	for i := 0; i <= 100; i++ {
		c.Set(fmt.Sprintf("k%03d", i), i, time.Hour)
		clock = clock.Add(time.Second)
	}

	// Inserting the 101st entry evicts the 10 oldest.
	assert.Equal(t, 91, c.Len())
	_, ok := c.Get("k000")
	assert.False(t, ok, "oldest entry evicted")
	_, ok = c.Get("k100")
	assert.True(t, ok, "newest entry kept")
}

func TestClear(t *testing.T) {
	c := New(0, 0)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := New(1000, time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d-%d", g, i%50)
				c.Set(key, i, time.Minute)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 1000)
}
