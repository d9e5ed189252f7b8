package dialer

import (
	"context"
	"crypto/tls"
	"net"
	"strings"

	"github.com/evwire/evhttp/internal/model"
	"github.com/evwire/evhttp/netpool"
)

var zeroDialer net.Dialer
var customDNSDialer = net.Dialer{
	Resolver: &customServerResolver,
}

// Dial obtains a pooled connection for the request's connection class,
// dialing through the request's proxy when one is set. TLS origins behind a
// proxy are reached over a CONNECT tunnel.
func (d *CoreDialer) Dial(ctx context.Context, r *model.PreparedRequest) (netpool.Conn, error) {
	return d.ConnPool.Connect(ctx, r.Key(), func(ctx context.Context) (net.Conn, error) {
		if r.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.Timeout)
			defer cancel()
		}
		if r.Proxy() != nil && r.TLS() {
			return d.dialTunnel(ctx, r)
		}
		conn, err := d.dialTCP(ctx, r.Address())
		if err != nil {
			return nil, err
		}
		if r.TLS() {
			return d.handshake(ctx, conn, r.U.Hostname())
		}
		return conn, nil
	})
}

func (d *CoreDialer) dialTCP(ctx context.Context, hp string) (net.Conn, error) {
	network, dialer, dialctx, dst := "tcp", &zeroDialer, ctx, hp

	if cfg := d.ResolveConfig; cfg != nil {
		if cfg.Network == "ip4" {
			network = "tcp4"
		} else if cfg.Network == "ip6" {
			network = "tcp6"
		}
		if addr, port, err := net.SplitHostPort(hp); err == nil {
			if static, ok := cfg.StaticHosts[addr]; ok {
				dst = net.JoinHostPort(static, port)
			}
		}
		if dns := cfg.CustomDNSServer; dns != "" {
			dialctx = dnsServerCtx{dialctx, dns}
			dialer = &customDNSDialer
		}
	}
	return dialer.DialContext(dialctx, network, dst)
}

// handshake upgrades conn to TLS for the given server name. ws/wss URLs
// negotiate plain http/1.1, never h2.
func (d *CoreDialer) handshake(ctx context.Context, conn net.Conn, serverName string) (net.Conn, error) {
	config := d.TLSConfig.Clone()
	if config == nil {
		config = &tls.Config{}
	}
	config.ServerName = serverName
	config.NextProtos = stripH2(config.NextProtos)
	c := tls.Client(conn, config)
	if err := c.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func stripH2(protos []string) []string {
	out := protos[:0]
	for _, p := range protos {
		if !strings.EqualFold(p, "h2") {
			out = append(out, p)
		}
	}
	return out
}
