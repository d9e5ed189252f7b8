package netpool

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Conn is a pooled duplex byte stream. Exactly one of Release, Discard or
// Detach ends the borrow: Release offers the connection to the next
// requester, Discard retires it, Detach un-registers it from pool
// bookkeeping while keeping it open for a new owner.
type Conn interface {
	io.ReadWriteCloser
	Raw() net.Conn
	Release()
	Discard()
	Detach() net.Conn
}

type pooled struct {
	conn     net.Conn
	p        *Pool
	isClosed atomic.Bool
	ticket   sync.Once // frees the conn ticket exactly once
	lastIdle time.Time
}

func (c *pooled) available() bool {
	return !c.isClosed.Load() && probeIdle(c.conn)
}

func (c *pooled) freeTicket() {
	c.ticket.Do(func() { <-c.p.connTicket })
}

func (c *pooled) Write(p []byte) (n int, err error) {
	n, err = c.conn.Write(p)
	if err != nil {
		if err != io.EOF {
			slog.Warn("netpool: error on write", "err", err)
		}
		c.Discard()
	}
	return
}

func (c *pooled) Read(p []byte) (n int, err error) {
	n, err = c.conn.Read(p)
	if err != nil {
		if err != io.EOF {
			slog.Debug("netpool: error on read", "err", err)
		}
		c.Discard()
	}
	return
}

func (c *pooled) Raw() net.Conn { return c.conn }

// Close retires the connection, same as Discard. Implementing io.Closer
// keeps pooled connections usable wherever a plain conn is expected.
func (c *pooled) Close() error {
	err := c.conn.Close()
	c.isClosed.Store(true)
	c.freeTicket()
	return err
}

func (c *pooled) Discard() { _ = c.Close() }

func (c *pooled) Release() {
	if c.isClosed.Load() {
		c.freeTicket()
		return
	}
	c.p.release(c)
}

func (c *pooled) Detach() net.Conn {
	c.freeTicket()
	return c.conn
}
