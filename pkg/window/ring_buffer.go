package window

import (
	"sync"

	"github.com/tunogya/sensorcast/pkg/model"
)

// RingBuffer is a circular buffer for samples with fixed capacity
type RingBuffer struct {
	data     []model.Sample
	capacity int
	size     int
	head     int // points to the next write position
	mu       sync.RWMutex
}

// NewRingBuffer creates a new ring buffer with the specified capacity
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		data:     make([]model.Sample, capacity),
		capacity: capacity,
	}
}

// Push adds a sample to the buffer
// If the buffer is full, the oldest sample is overwritten
func (rb *RingBuffer) Push(s model.Sample) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.data[rb.head] = s
	rb.head = (rb.head + 1) % rb.capacity
	if rb.size < rb.capacity {
		rb.size++
	}
}

// Size returns the current number of elements in the buffer
func (rb *RingBuffer) Size() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// IsFull returns true if the buffer is at capacity
func (rb *RingBuffer) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size == rb.capacity
}

// start returns the index of the oldest element; callers hold the lock
func (rb *RingBuffer) start() int {
	if rb.size == rb.capacity {
		return rb.head
	}
	return 0
}

// ToSlice returns all samples in chronological order (oldest first)
func (rb *RingBuffer) ToSlice() []model.Sample {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.toSlice()
}

func (rb *RingBuffer) toSlice() []model.Sample {
	result := make([]model.Sample, rb.size)
	start := rb.start()
	for i := 0; i < rb.size; i++ {
		result[i] = rb.data[(start+i)%rb.capacity]
	}
	return result
}
