package sempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSemaphore(t *testing.T) {
	t.Parallel()
	s := NewSemaphore(1)
	s.Acquire()
	require.False(t, s.TryAcquire())
	s.Release()
	require.True(t, s.TryAcquire())
	s.Release()
}

func TestPoolPrunesUnreferencedKeys(t *testing.T) {
	t.Parallel()
	p := NewSemaphorePool(1)

	sem := p.Get("task-1")
	sem.Acquire()
	require.Equal(t, 1, p.Len())

	sem.Release()
	p.Put("task-1")
	require.Equal(t, 0, p.Len())

	// Unknown keys are a no-op.
	p.Put("task-1")
	require.Equal(t, 0, p.Len())
}

func TestPoolKeepsEntryWhileReferenced(t *testing.T) {
	t.Parallel()
	p := NewSemaphorePool(1)

	first := p.Get("task-1")
	first.Acquire()

	var order []int
	var olk sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sem := p.Get("task-1")
		sem.Acquire()
		olk.Lock()
		order = append(order, 2)
		olk.Unlock()
		sem.Release()
		p.Put("task-1")
	}()

	// The waiter holds its own reference, so releasing the first does not
	// prune the entry out from under it.
	olk.Lock()
	order = append(order, 1)
	olk.Unlock()
	first.Release()
	p.Put("task-1")

	wg.Wait()
	require.Equal(t, []int{1, 2}, order)
	require.Equal(t, 0, p.Len())
}
