package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), Options{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestLock_Exclusive(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := c.Lock(ctx, "org:1")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestLock_ReleaseOnlyOwnToken(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	release, err := c.Lock(ctx, "user:7")
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockPrefix+"user:7"))

	// Another holder took over after expiry; the stale release must not remove it.
	mr.Set(lockPrefix+"user:7", "someone-else")
	release()
	got, err := mr.Get(lockPrefix + "user:7")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLock_Timeout(t *testing.T) {
	c, mr := newTestClient(t)
	mr.Set(lockPrefix+"busy", "held")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Lock(ctx, "busy")
	assert.ErrorIs(t, err, ErrLockTimeout)
}
