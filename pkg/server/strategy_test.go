package server

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorRunsTasksInOrderOneAtATime(t *testing.T) {
	pool := newReactor(4)
	pool.start()
	defer pool.stop()

	const n = 2000
	var (
		inFlight atomic.Int32
		overlap  atomic.Bool
		got      []int
	)
	done := make(chan struct{})

	a := &actor{pool: pool}
	for i := range n {
		ok := a.submit(func() bool {
			if inFlight.Add(1) > 1 {
				overlap.Store(true)
			}
			got = append(got, i)
			inFlight.Add(-1)
			return true
		})
		require.True(t, ok)
	}
	a.submit(func() bool {
		close(done)
		return false
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("actor did not drain")
	}

	assert.False(t, overlap.Load())
	require.Len(t, got, n)
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
	assert.False(t, a.submit(func() bool { return true }))
}

func TestActorsShareThePool(t *testing.T) {
	pool := newReactor(2)
	pool.start()
	defer pool.stop()

	const actors, each = 50, 100
	var total atomic.Int64
	var wg sync.WaitGroup
	for range actors {
		a := &actor{pool: pool}
		wg.Add(1)
		go func() {
			defer wg.Done()
			finished := make(chan struct{})
			for range each {
				a.submit(func() bool { total.Add(1); return true })
			}
			a.submit(func() bool { close(finished); return false })
			<-finished
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(actors*each), total.Load())
}

func TestNewReactorDefaultsToGOMAXPROCS(t *testing.T) {
	assert.Positive(t, newReactor(0).workers)
	assert.Equal(t, 3, newReactor(3).workers)
}
