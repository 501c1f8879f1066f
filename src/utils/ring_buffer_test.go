package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferWrapsAround(t *testing.T) {
	rb := NewRingBuffer[int](3)
	assert.Empty(t, rb.All())

	for i := 1; i <= 5; i++ {
		rb.Append(i)
	}

	assert.Equal(t, 3, rb.Len())
	assert.Equal(t, []int{3, 4, 5}, rb.All())
	assert.Equal(t, []int{4, 5}, rb.Latest(2))
	assert.Equal(t, []int{3, 4, 5}, rb.Latest(10))
	assert.Empty(t, rb.Latest(0))
}

func TestRingBufferPartiallyFilled(t *testing.T) {
	rb := NewRingBuffer[string](4)
	rb.Append("a")
	rb.Append("b")

	assert.Equal(t, []string{"a", "b"}, rb.All())
	assert.Equal(t, []string{"b"}, rb.Latest(1))
	assert.Equal(t, 4, rb.Capacity())
}

func TestMemoryUsage(t *testing.T) {
	m := MemoryUsage()
	assert.NotZero(t, m.HeapAlloc)
	assert.NotEmpty(t, m.HeapHuman)
	assert.Positive(t, m.Goroutines)
}
