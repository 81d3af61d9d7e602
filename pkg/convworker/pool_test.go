package convworker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolPerKeyOrdering(t *testing.T) {
	pool := NewPool(4, 64)
	pool.Start(context.Background())
	defer pool.Stop()

	var mu sync.Mutex
	seen := make(map[string][]int)
	var wg sync.WaitGroup

	keys := []string{"v1|WHATSAPP|628111", "v1|WHATSAPP|628222", "v2|WHATSAPP|628111"}
	for _, key := range keys {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			k, seq := key, i
			ok := pool.TryDispatch(Job{
				ConversationKey: k,
				Handler: func(ctx context.Context) error {
					defer wg.Done()
					mu.Lock()
					seen[k] = append(seen[k], seq)
					mu.Unlock()
					return nil
				},
			})
			require.True(t, ok)
		}
	}

	wg.Wait()

	for _, key := range keys {
		mu.Lock()
		got := seen[key]
		mu.Unlock()
		require.Len(t, got, 20)
		for i, v := range got {
			assert.Equal(t, i, v, "key %s out of order at %d", key, i)
		}
	}
}

func TestPoolShardIsStable(t *testing.T) {
	pool := NewPool(8, 1)
	a := pool.shardFor("v1|WHATSAPP|628111222333")
	for i := 0; i < 100; i++ {
		assert.Equal(t, a, pool.shardFor("v1|WHATSAPP|628111222333"))
	}
}

func TestPoolBackpressure(t *testing.T) {
	pool := NewPool(1, 1)
	pool.Start(context.Background())
	defer pool.Stop()

	block := make(chan struct{})
	started := make(chan struct{})
	require.True(t, pool.TryDispatch(Job{
		ConversationKey: "k",
		Handler: func(ctx context.Context) error {
			close(started)
			<-block
			return nil
		},
	}))
	<-started

	// One slot in the queue, then the shard refuses.
	require.True(t, pool.TryDispatch(Job{ConversationKey: "k", Handler: func(ctx context.Context) error { return nil }}))
	assert.False(t, pool.TryDispatch(Job{ConversationKey: "k", Handler: func(ctx context.Context) error { return nil }}))

	close(block)
}

func TestPoolStopRejectsNewJobs(t *testing.T) {
	pool := NewPool(2, 4)
	pool.Start(context.Background())
	pool.Stop()

	assert.False(t, pool.TryDispatch(Job{ConversationKey: "k", Handler: func(ctx context.Context) error { return nil }}))
	stats := pool.GetStats()
	assert.Equal(t, int64(1), stats.TotalDropped)
}

func TestPoolStatsCountProcessed(t *testing.T) {
	pool := NewPool(2, 16)
	pool.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		pool.Dispatch(Job{ConversationKey: "k", Handler: func(ctx context.Context) error {
			defer wg.Done()
			return nil
		}})
	}
	wg.Wait()
	// Counters are updated after the handler returns.
	assert.Eventually(t, func() bool {
		return pool.GetStats().TotalProcessed == 10
	}, time.Second, 10*time.Millisecond)
	pool.Stop()
}
