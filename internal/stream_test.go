package internal

import (
	"context"
	"io"
	"net"
	"testing"
	"time"
)

type fakePooled struct {
	net.Conn
}

func (c *fakePooled) Raw() net.Conn    { return c.Conn }
func (c *fakePooled) Release()         {}
func (c *fakePooled) Discard()         { c.Conn.Close() }
func (c *fakePooled) Detach() net.Conn { return c.Conn }

func attachedStream(t *testing.T) *Stream {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close() })
	s := newStream()
	s.connection(&fakePooled{Conn: client})
	return s
}

func TestStreamUnattached(t *testing.T) {
	s := newStream()
	if _, err := s.Next(context.Background()); err != ErrStreamConsumed {
		t.Errorf("Next = %v, want ErrStreamConsumed", err)
	}
	if b, err := s.Read(context.Background()); b != nil || err != nil {
		t.Errorf("Read = %q, %v, want empty", b, err)
	}
}

func TestStreamOrder(t *testing.T) {
	s := attachedStream(t)
	go func() {
		s.push([]byte("one"))
		s.push([]byte("two"))
		s.finish()
	}()

	ctx := context.Background()
	for _, want := range []string{"one", "two"} {
		b, err := s.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != want {
			t.Errorf("chunk = %q, want %q", b, want)
		}
	}
	if _, err := s.Next(ctx); err != io.EOF {
		t.Errorf("after finish Next = %v, want io.EOF", err)
	}
}

func TestStreamBackpressure(t *testing.T) {
	s := attachedStream(t)
	delivered := make(chan struct{})
	go func() {
		s.push([]byte("a"))
		s.push([]byte("b")) // blocks until the consumer pulls "a"
		close(delivered)
	}()

	select {
	case <-delivered:
		t.Fatal("second push did not block")
	case <-time.After(20 * time.Millisecond):
	}
	if _, err := s.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("second push never unblocked")
	}
}

func TestStreamNextContext(t *testing.T) {
	s := attachedStream(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Next(ctx); err != context.Canceled {
		t.Errorf("Next = %v, want context.Canceled", err)
	}
}

func TestStreamRead(t *testing.T) {
	s := attachedStream(t)
	go func() {
		s.push([]byte("concat"))
		s.push([]byte("enated"))
		s.finish()
	}()
	b, err := s.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "concatenated" {
		t.Errorf("Read = %q", b)
	}
}
