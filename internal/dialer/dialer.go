package dialer

import (
	"context"
	"crypto/tls"

	"github.com/evwire/evhttp/internal/model"
	"github.com/evwire/evhttp/netpool"
)

// Dialers handle everything related to the actual connection: resolving,
// proxy tunneling, TLS and pooling. The returned connection is pooled;
// the caller decides whether to Release, Discard or Detach it.
type Dialer interface {
	Dial(ctx context.Context, r *model.PreparedRequest) (netpool.Conn, error)
	Unwrap() Dialer
}

type CoreDialer struct {
	ResolveConfig *ResolveConfig

	TLSConfig *tls.Config // the config to use for origin handshakes

	ConnPool *netpool.Group
}

func NewCoreDialer() *CoreDialer {
	return &CoreDialer{
		TLSConfig: &tls.Config{},
		ConnPool:  netpool.NewGroup(100, 80),
	}
}

func (d *CoreDialer) Clone() *CoreDialer {
	return &CoreDialer{
		ResolveConfig: d.ResolveConfig.Clone(),
		TLSConfig:     d.TLSConfig.Clone(),
		ConnPool:      d.ConnPool.NewEmpty(),
	}
}

func (d *CoreDialer) Unwrap() Dialer {
	return nil
}
