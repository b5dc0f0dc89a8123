package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSemaphore_RespectsConcurrencyCap(t *testing.T) {
	sem := NewSemaphore(2)
	var running atomic.Int32
	var peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.True(t, sem.Acquire())
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			sem.Release()
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, int(peak.Load()), 2)
}

func TestSemaphore_FIFOOrder(t *testing.T) {
	sem := NewSemaphore(1)
	require.True(t, sem.Acquire())

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.True(t, sem.Acquire())
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			sem.Release()
		}(i)
		time.Sleep(5 * time.Millisecond)
	}
	sem.Release()
	wg.Wait()
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestSemaphore_SetConcurrencyWakesWaiters(t *testing.T) {
	sem := NewSemaphore(1)
	require.True(t, sem.Acquire())

	acquired := make(chan bool, 1)
	go func() { acquired <- sem.Acquire() }()
	time.Sleep(10 * time.Millisecond)

	sem.SetConcurrency(2)
	select {
	case ok := <-acquired:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken after SetConcurrency increase")
	}
}

func TestSemaphore_ResetSignalsNotAcquired(t *testing.T) {
	sem := NewSemaphore(1)
	require.True(t, sem.Acquire())

	result := make(chan bool, 1)
	go func() { result <- sem.Acquire() }()
	time.Sleep(10 * time.Millisecond)

	sem.Reset()
	select {
	case ok := <-result:
		require.False(t, ok, "reset must signal waiters as not-acquired")
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Reset")
	}
}
