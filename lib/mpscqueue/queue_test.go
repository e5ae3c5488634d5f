package mpscqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasic(t *testing.T) {
	q := New()
	assert.True(t, q.Empty())

	q.Push(5)
	assert.False(t, q.Empty())
	assert.Equal(t, 5, q.Pop())
	assert.True(t, q.Empty())
}

func TestMultiInsert(t *testing.T) {
	const max = 100

	q := New()
	for i := 0; i < max; i++ {
		q.Push(i)
	}

	for i := 0; i < max; i++ {
		require.False(t, q.Empty())
		assert.Equal(t, i, q.Pop())
	}
	assert.True(t, q.Empty())
}

// TestMpsc pushes from many producers concurrently and checks that the
// consumer observes every value exactly once.
func TestMpsc(t *testing.T) {
	const (
		max        = 100000
		numThreads = 10
	)

	var curValue int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	q := New()

	for i := 0; i < numThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				mu.Lock()
				if curValue >= max {
					mu.Unlock()
					return
				}
				myValue := curValue
				curValue++
				mu.Unlock()
				q.Push(int(myValue))
			}
		}()
	}

	received := make(map[int]bool, max)
	for len(received) < max {
		if !q.Empty() {
			v := q.Pop().(int)
			require.False(t, received[v], "value %d received twice", v)
			received[v] = true
		}
	}

	wg.Wait()
	assert.Len(t, received, max)
}

func TestWaitNotEmpty(t *testing.T) {
	const max = 1000
	q := New()

	go func() {
		for i := 0; i < max; i++ {
			q.Push(i)
		}
	}()

	for i := 0; i < max; i++ {
		q.WaitNotEmpty()
		assert.Equal(t, i, q.Pop())
	}
}
