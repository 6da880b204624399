package singleflight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// P1: concurrent callers sharing a key collapse into exactly one call.
func TestDo_CollapsesConcurrentCallers(t *testing.T) {
	r := New()
	var calls int32
	release := make(chan struct{})

	fn := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "result", nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]interface{}, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			val, err, _ := r.Do(context.Background(), "k", fn)
			require.NoError(t, err)
			results[i] = val
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, "result", v)
	}
	assert.Equal(t, 0, r.Len())
}

// A follower whose context is cancelled returns ErrTimeout without
// affecting the leader's own in-flight call.
func TestDo_FollowerTimeoutDoesNotAbortLeader(t *testing.T) {
	r := New()
	leaderDone := make(chan struct{})
	leaderStarted := make(chan struct{})

	go func() {
		_, _, isLeader := r.Do(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
			close(leaderStarted)
			time.Sleep(150 * time.Millisecond)
			return "leader-result", nil
		})
		assert.True(t, isLeader)
		close(leaderDone)
	}()

	<-leaderStarted
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err, isLeader := r.Do(ctx, "k", func(context.Context) (interface{}, error) {
		t.Fatal("follower must not re-run fn while a leader is in flight")
		return nil, nil
	})
	assert.False(t, isLeader)
	assert.ErrorIs(t, err, ErrTimeout)

	<-leaderDone
}

// Distinct keys never serialize against each other.
func TestDo_DistinctKeysRunConcurrently(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make(chan string, 2)

	run := func(key string) {
		defer wg.Done()
		<-start
		val, err, _ := r.Do(context.Background(), key, func(ctx context.Context) (interface{}, error) {
			return key, nil
		})
		require.NoError(t, err)
		results <- val.(string)
	}

	wg.Add(2)
	go run("a")
	go run("b")
	close(start)
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for v := range results {
		seen[v] = true
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}
