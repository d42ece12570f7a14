// Copyright (C) 2025 LymphHub contributors (ops@lyckabc.xyz)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package util

import "sync"

// =============================================================================
// Ring Buffer
// =============================================================================

// RingBuffer is a fixed-capacity FIFO that drops the oldest item when full.
//
// # Description
//
// Used to bound captured output such as container log tails. Pushing
// into a full buffer evicts the oldest item rather than blocking, so
// the buffer always holds the most recent Capacity items.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
//
// # Example
//
//	tail := util.NewRingBuffer[string](20)
//	for _, line := range lines {
//	    tail.Push(line)
//	}
//	recent := tail.ToSlice() // at most the last 20 lines
type RingBuffer[T any] struct {
	mu       sync.Mutex
	buffer   []T
	capacity int
	head     int
	size     int
	dropped  int64
}

// NewRingBuffer creates a buffer holding at most capacity items.
// Panics if capacity is not positive.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("ring buffer capacity must be positive")
	}
	return &RingBuffer[T]{
		buffer:   make([]T, capacity),
		capacity: capacity,
	}
}

// Push adds an item, evicting the oldest when full.
// Returns true if an item was dropped to make room.
func (r *RingBuffer[T]) Push(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.head + r.size) % r.capacity
	r.buffer[idx] = item
	if r.size == r.capacity {
		r.head = (r.head + 1) % r.capacity
		r.dropped++
		return true
	}
	r.size++
	return false
}

// Size returns the number of items currently held.
func (r *RingBuffer[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the maximum number of items the buffer can hold.
func (r *RingBuffer[T]) Capacity() int {
	return r.capacity
}

// DroppedCount returns how many items have been evicted since creation.
func (r *RingBuffer[T]) DroppedCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// ToSlice returns the held items oldest-first without consuming them.
func (r *RingBuffer[T]) ToSlice() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buffer[(r.head+i)%r.capacity]
	}
	return out
}
