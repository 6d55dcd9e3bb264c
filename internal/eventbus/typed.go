package eventbus

import "sync"

// Feed distributes events of a single concrete type. The pipeline publishes
// everything on the untyped Bus; a demultiplexer sorts those events into
// per-type Feeds so consumers read concrete values instead of switching on
// interfaces.
type Feed[T any] struct {
	mu      sync.RWMutex
	readers []chan T
	buffer  int
	closed  bool
}

// NewFeed returns a Feed whose reader channels hold up to buffer events.
// A non-positive buffer falls back to 8.
func NewFeed[T any](buffer int) *Feed[T] {
	if buffer <= 0 {
		buffer = 8
	}
	return &Feed[T]{buffer: buffer}
}

// Push delivers the event to every reader without blocking. A reader whose
// buffer is full misses the event; the producer never stalls.
func (f *Feed[T]) Push(e T) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, ch := range f.readers {
		select {
		case ch <- e:
		default:
		}
	}
}

// Reader registers a consumer and returns its channel. The channel closes
// when the consumer is dropped or the feed shuts down.
func (f *Feed[T]) Reader() <-chan T {
	ch := make(chan T, f.buffer)
	f.mu.Lock()
	if f.closed {
		close(ch)
	} else {
		f.readers = append(f.readers, ch)
	}
	f.mu.Unlock()
	return ch
}

// Drop removes the reader and closes its channel.
func (f *Feed[T]) Drop(r <-chan T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ch := range f.readers {
		if ch == r {
			f.readers = append(f.readers[:i], f.readers[i+1:]...)
			if !f.closed {
				close(ch)
			}
			return
		}
	}
}

// Close shuts the feed down and closes all reader channels. Pushes after
// Close are discarded.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for _, ch := range f.readers {
		close(ch)
	}
	f.readers = nil
	f.mu.Unlock()
}
