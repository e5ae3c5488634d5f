package taskrunner

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	r := New()
	defer r.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(2)

	r.PostTask(func() {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		wg.Done()
	})
	r.PostTask(func() {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		wg.Done()
	})

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, order)
}

func TestIsCurrentThread(t *testing.T) {
	r := New()
	defer r.Stop()

	assert.False(t, r.IsCurrentThread())

	done := make(chan bool, 1)
	r.PostTask(func() {
		done <- r.IsCurrentThread()
	})
	require.True(t, <-done)
}

func TestStopDrainsQueue(t *testing.T) {
	r := New()

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 10; i++ {
		r.PostTask(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, ran)
}
