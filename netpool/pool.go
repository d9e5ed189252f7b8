// Package netpool keeps per-endpoint pools of reusable connections.
// Tickets bound how many live connections exist per key; idle connections
// are handed to the next requester or retired when their slot is full.
package netpool

import (
	"context"
	"net"
	"time"
)

type Pool struct {
	connTicket      chan struct{}
	idleTicket      chan *pooled
	maxIdleDuration time.Duration
}

func NewPool(maxIdle, maxConn uint) *Pool {
	return &Pool{
		connTicket: make(chan struct{}, maxConn),
		idleTicket: make(chan *pooled, maxIdle),
	}
}

// Connect hands out an idle connection for the pool's endpoint, dialing a
// new one when none is available. Dialing waits for a free connection
// ticket, so at most maxConn connections are live at any time.
func (p *Pool) Connect(ctx context.Context, dial func(ctx context.Context) (net.Conn, error)) (Conn, error) {
	for {
		select {
		case c := <-p.idleTicket:
			if p.maxIdleDuration != 0 && time.Since(c.lastIdle) > p.maxIdleDuration {
				c.Discard()
			} else if c.available() {
				return c, nil
			} else {
				c.Discard()
			}
		default:
			select {
			case p.connTicket <- struct{}{}:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			nc, err := dial(ctx)
			if err != nil {
				<-p.connTicket
				return nil, err
			}
			return &pooled{conn: nc, p: p}, nil
		}
	}
}

// release returns c to the idle set, or retires it when the idle slots are
// full. The connection keeps holding its ticket while idle.
func (p *Pool) release(c *pooled) {
	c.lastIdle = time.Now()
	select {
	case p.idleTicket <- c:
	default:
		c.Discard()
	}
}
