// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package synchronizer

import "sync"

// Cell holds a value that changes over time. Subscribers receive the
// latest value on a one-slot channel: a value a slow subscriber has not
// read yet is replaced, never queued, and Set never blocks.
type Cell[T any] struct {
	mu          sync.Mutex
	value       T
	subscribers map[chan T]struct{}
}

// NewCell returns a Cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial, subscribers: make(map[chan T]struct{})}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set stores value and offers it to every subscriber.
func (c *Cell[T]) Set(value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	for channel := range c.subscribers {
		offer(channel, value)
	}
}

// Subscribe returns a channel primed with the current value and a
// function that ends the subscription. The channel is never closed.
func (c *Cell[T]) Subscribe() (<-chan T, func()) {
	channel := make(chan T, 1)
	c.mu.Lock()
	c.subscribers[channel] = struct{}{}
	channel <- c.value
	c.mu.Unlock()

	return channel, func() {
		c.mu.Lock()
		delete(c.subscribers, channel)
		c.mu.Unlock()
	}
}

// offer replaces whatever is buffered in channel with value. Only
// called with the cell locked, so no other sender competes for the
// slot.
func offer[T any](channel chan T, value T) {
	select {
	case <-channel:
	default:
	}
	channel <- value
}
