package netpool

import (
	"context"
	"net"
	"sync"
)

// Group multiplexes pools by an opaque key, typically the request's
// (scheme, address, timeout) connection class.
type Group struct {
	sync.RWMutex
	pools map[interface{}]*Pool

	maxConnsPerHost, maxIdlePerHost uint
}

func NewGroup(maxConnsPerHost, maxIdlePerHost uint) *Group {
	return &Group{
		pools:           map[interface{}]*Pool{},
		maxConnsPerHost: maxConnsPerHost, maxIdlePerHost: maxIdlePerHost,
	}
}

// NewEmpty clones the group configuration with no pooled connections.
func (g *Group) NewEmpty() *Group {
	return NewGroup(g.maxConnsPerHost, g.maxIdlePerHost)
}

func (g *Group) Connect(ctx context.Context, key interface{}, dial func(ctx context.Context) (net.Conn, error)) (Conn, error) {
	g.RLock()
	p, ok := g.pools[key]
	g.RUnlock()
	if ok {
		return p.Connect(ctx, dial)
	}
	g.Lock()
	if p, ok = g.pools[key]; !ok {
		p = NewPool(g.maxIdlePerHost, g.maxConnsPerHost)
		g.pools[key] = p
	}
	g.Unlock()
	return p.Connect(ctx, dial)
}
