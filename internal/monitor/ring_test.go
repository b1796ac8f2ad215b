package monitor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferNewestFirst(t *testing.T) {
	r := NewRingBuffer[int](3)

	assert.Empty(t, r.All())
	_, ok := r.Latest()
	assert.False(t, ok)

	r.Push(1)
	r.Push(2)
	assert.Equal(t, []int{2, 1}, r.All())

	oldest, ok := r.Oldest()
	assert.True(t, ok)
	assert.Equal(t, 1, oldest)
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	r := NewRingBuffer[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	assert.Equal(t, []int{5, 4, 3}, r.All())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Cap())

	latest, _ := r.Latest()
	oldest, _ := r.Oldest()
	assert.Equal(t, 5, latest)
	assert.Equal(t, 3, oldest)
}

func TestRingBufferRecent(t *testing.T) {
	r := NewRingBuffer[int](4)
	for i := 1; i <= 6; i++ {
		r.Push(i)
	}

	assert.Equal(t, []int{6, 5}, r.Recent(2))
	assert.Equal(t, []int{6, 5, 4, 3}, r.Recent(10))
	assert.Empty(t, r.Recent(0))
}

func TestRingBufferFilterAndClear(t *testing.T) {
	r := NewRingBuffer[int](5)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	assert.Equal(t, []int{4, 2}, r.Filter(func(v int) bool { return v%2 == 0 }))

	r.Clear()
	assert.Zero(t, r.Len())
	assert.Empty(t, r.All())

	r.Push(9)
	assert.Equal(t, []int{9}, r.All())
}

func TestRingBufferMinimumCapacity(t *testing.T) {
	r := NewRingBuffer[string](0)
	r.Push("a")
	r.Push("b")
	assert.Equal(t, []string{"b"}, r.All())
}

func TestRingBufferConcurrentPush(t *testing.T) {
	r := NewRingBuffer[int](64)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Push(i)
				_ = r.Recent(8)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 64, r.Len())
}
