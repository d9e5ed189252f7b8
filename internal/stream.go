package internal

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"

	"github.com/evwire/evhttp/netpool"
)

// Stream exposes a response payload as a lazy, pull-based sequence of
// chunks instead of a buffered blob. The owning exchange resolves at
// headers-complete time; body bytes keep arriving on the detached
// connection and are handed over chunk by chunk.
//
// The queue holds one chunk at a time: the connection's read callback
// blocks until the consumer pulls, which is the backpressure.
type Stream struct {
	mu       sync.Mutex
	conn     net.Conn
	attached bool
	begun    bool

	ch   chan []byte
	done chan struct{}
	once sync.Once
}

func newStream() *Stream {
	return &Stream{
		ch:   make(chan []byte, 1),
		done: make(chan struct{}),
	}
}

// connection transfers ownership of the live connection away from the pool
// and the consumer to this stream. Fires at most once per exchange.
func (s *Stream) connection(c netpool.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		s.conn = c.Detach()
		s.attached = true
	}
}

// push hands a body fragment to the consumer side. Called only from the
// connection's read callback.
func (s *Stream) push(b []byte) {
	select {
	case s.ch <- b:
	case <-s.done:
	}
}

// finish marks the owning exchange done; iteration ends once the queue
// drains.
func (s *Stream) finish() {
	s.once.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Next pulls the next chunk, blocking until one is available. It returns
// io.EOF once the exchange has finished and the queue is drained; calling
// it again after that keeps returning io.EOF. A stream whose connection was
// never attached was never tied to a live exchange, iterating it is a
// caller bug.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if !s.attached {
		s.mu.Unlock()
		return nil, ErrStreamConsumed
	}
	s.begun = true
	s.mu.Unlock()

	select {
	case b := <-s.ch:
		return b, nil
	case <-s.done:
		// drain chunks that raced with completion
		select {
		case b := <-s.ch:
			return b, nil
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Read drains the remaining sequence and concatenates it, for callers that
// want buffering semantics on top of a streaming source. Reading a stream
// that was never attached, or one already being iterated, yields nothing.
func (s *Stream) Read(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if !s.attached || s.begun {
		s.mu.Unlock()
		return nil, nil
	}
	s.mu.Unlock()

	var buf bytes.Buffer
	for {
		b, err := s.Next(ctx)
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return buf.Bytes(), err
		}
		buf.Write(b)
	}
}
