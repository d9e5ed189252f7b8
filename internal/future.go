package internal

import (
	"context"
	"sync"
)

// Pending is the caller-visible completion future of one logical exchange.
// Redirect hops share a single Pending; whichever hop finishes without
// spawning another one resolves it, exactly once.
type Pending struct {
	done chan struct{}
	once sync.Once
	resp *Response
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(r *Response, err error) {
	p.once.Do(func() {
		p.resp, p.err = r, err
		close(p.done)
	})
}

// Done is closed once the exchange is resolved.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the exchange resolves or ctx ends. Abandoning the wait
// does not abort in-flight I/O; cancelling the submit context does.
func (p *Pending) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-p.done:
		return p.resp, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
