// Package ringbuf implements the bounded buffer between the decoder and the
// output writers.
//
// Messages are stored with a 4-byte little-endian length prefix that counts
// the prefix itself; every message starts on a 4-byte boundary. A message
// never straddles the end of the buffer: when the tail is too short the
// writer records where the used region ends and continues at offset 0.
package ringbuf

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
)

var (
	ErrShutdown = errors.New("ringbuf: shutdown")
	ErrTooLarge = errors.New("ringbuf: message larger than buffer")
)

const prefixSize = 4

type Buffer struct {
	mu      sync.Mutex
	readers *sync.Cond
	writers *sync.Cond

	data  []byte
	start int // next message to read
	end   int // next free byte
	wrap  int // end of the used region after the writer wrapped, 0 if not wrapped

	closed   bool
	shutdown bool
	done     chan struct{}
}

// New allocates a buffer of size bytes rounded down to a multiple of 4.
func New(size int) *Buffer {
	size &^= 3
	b := &Buffer{
		data: make([]byte, size),
		done: make(chan struct{}),
	}
	b.readers = sync.NewCond(&b.mu)
	b.writers = sync.NewCond(&b.mu)
	return b
}

func align(n int) int {
	return (n + 3) &^ 3
}

func (b *Buffer) Size() int {
	return len(b.data)
}

// Used returns the number of bytes occupied by unread messages, including
// the unused tail skipped by a wrap.
func (b *Buffer) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wrap > 0 {
		return b.wrap - b.start + b.end
	}
	return b.end - b.start
}

// Write copies payload into the buffer, blocking while there is no room.
func (b *Buffer) Write(payload []byte) error {
	length := prefixSize + len(payload)
	n := align(length)
	if n > len(b.data) {
		return ErrTooLarge
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if b.shutdown {
			return ErrShutdown
		}
		if b.closed {
			return io.ErrClosedPipe
		}
		if b.start == b.end && b.wrap == 0 {
			b.start, b.end = 0, 0
		}

		if b.wrap == 0 {
			if b.end+n <= len(b.data) {
				break
			}
			// the gap keeps start != end while wrapped
			if n < b.start {
				b.wrap = b.end
				b.end = 0
				break
			}
		} else if b.end+n < b.start {
			break
		}
		b.writers.Wait()
	}

	binary.LittleEndian.PutUint32(b.data[b.end:], uint32(length))
	copy(b.data[b.end+prefixSize:], payload)
	b.end += n
	b.readers.Broadcast()
	return nil
}

// Next blocks until a message is available and returns a copy of its
// payload. After Close it drains the remaining messages and then returns
// io.EOF.
func (b *Buffer) Next() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		if b.shutdown {
			return nil, ErrShutdown
		}
		if b.wrap > 0 && b.start == b.wrap {
			b.start, b.wrap = 0, 0
		}
		if b.start != b.end {
			break
		}
		if b.closed {
			return nil, io.EOF
		}
		b.readers.Wait()
	}

	length := int(binary.LittleEndian.Uint32(b.data[b.start:]))
	out := make([]byte, length-prefixSize)
	copy(out, b.data[b.start+prefixSize:b.start+length])
	b.start += align(length)
	b.writers.Broadcast()
	return out, nil
}

// Close stops accepting messages. Readers drain what is buffered.
func (b *Buffer) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.readers.Broadcast()
	b.writers.Broadcast()
}

// Shutdown aborts all waiting and future calls with ErrShutdown.
func (b *Buffer) Shutdown() {
	b.mu.Lock()
	if !b.shutdown {
		b.shutdown = true
		close(b.done)
	}
	b.mu.Unlock()
	b.readers.Broadcast()
	b.writers.Broadcast()
}

// WatchContext shuts the buffer down when ctx is cancelled.
func (b *Buffer) WatchContext(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			b.Shutdown()
		case <-b.done:
		}
	}()
}
