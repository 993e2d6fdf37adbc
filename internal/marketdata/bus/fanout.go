// Package bus broadcasts values from one producer to many consumers.
package bus

import (
	"context"
	"log"
	"sync"
)

// FanOut broadcasts values to N subscriber channels. If a subscriber's
// channel is full the value is dropped for that subscriber so a slow
// consumer never blocks the producer.
type FanOut[T any] struct {
	mu      sync.RWMutex
	outputs []chan T
	bufSize int
	closed  bool

	// OnDrop is called when a value is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut with the given buffer size for output channels.
func New[T any](outputBufferSize int) *FanOut[T] {
	return &FanOut[T]{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new output channel. Subscribing after
// Close returns an already closed channel.
func (f *FanOut[T]) Subscribe() <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	f.outputs = append(f.outputs, ch)
	return ch
}

// Publish delivers v to every subscriber without blocking.
func (f *FanOut[T]) Publish(v T) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for i, ch := range f.outputs {
		select {
		case ch <- v:
		default:
			if f.OnDrop != nil {
				f.OnDrop(i)
			} else {
				log.Printf("[bus] output channel %d full, dropping value", i)
			}
		}
	}
}

// Run reads from input and publishes every value until ctx is cancelled or
// input is closed, then closes all subscriber channels.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer f.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.Publish(v)
		}
	}
}

// Close closes every subscriber channel. It is safe to call more than once.
func (f *FanOut[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.outputs {
		close(ch)
	}
}

// ChannelStat is the fill level of one subscriber channel.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns (length, capacity) for each subscriber channel.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
