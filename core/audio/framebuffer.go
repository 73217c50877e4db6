package audio

import (
	"context"
	"errors"
	"io"
	"sync"
)

const DefaultFrameBufferCapacity = 64

var ErrFrameBufferClosed = errors.New("frame buffer closed")

// FrameBuffer hands audio frames from a real-time device callback to a
// single consumer. Push never blocks: once the buffer is full the oldest
// unread frame is overwritten.
type FrameBuffer struct {
	mu      sync.Mutex
	frames  [][]byte
	head    int
	size    int
	dropped int
	closed  bool
	err     error

	ready chan struct{}
}

func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity <= 0 {
		capacity = DefaultFrameBufferCapacity
	}
	return &FrameBuffer{
		frames: make([][]byte, capacity),
		ready:  make(chan struct{}, 1),
	}
}

// Push copies frame into the buffer. It reports false once the buffer is
// closed.
func (b *FrameBuffer) Push(frame []byte) bool {
	copied := append([]byte(nil), frame...)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	capacity := len(b.frames)
	if b.size == capacity {
		b.frames[b.head] = copied
		b.head = (b.head + 1) % capacity
		b.dropped++
	} else {
		b.frames[(b.head+b.size)%capacity] = copied
		b.size++
	}
	b.mu.Unlock()

	b.signal()
	return true
}

// Next blocks until a frame is available. After Close it drains what is
// left and then returns io.EOF, or the error passed to CloseWithError.
func (b *FrameBuffer) Next(ctx context.Context) ([]byte, error) {
	for {
		b.mu.Lock()
		if b.size > 0 {
			frame := b.frames[b.head]
			b.frames[b.head] = nil
			b.head = (b.head + 1) % len(b.frames)
			b.size--
			b.mu.Unlock()
			return frame, nil
		}
		if b.closed {
			err := b.err
			b.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return nil, err
		}
		b.mu.Unlock()

		select {
		case <-b.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (b *FrameBuffer) Close() {
	b.CloseWithError(nil)
}

// CloseWithError closes the buffer so the consumer sees err once the
// remaining frames are drained. Only the first close counts.
func (b *FrameBuffer) CloseWithError(err error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.err = err
	b.mu.Unlock()
	b.signal()
}

func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Dropped counts frames overwritten before the consumer read them.
func (b *FrameBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *FrameBuffer) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}
