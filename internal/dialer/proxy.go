package dialer

import (
	"context"
	"fmt"
	"net"

	"github.com/evwire/evhttp/internal/codec"
	"github.com/evwire/evhttp/internal/model"
)

// dialTunnel reaches a TLS origin through an HTTP proxy: CONNECT to the
// proxy, then run the origin TLS handshake inside the tunnel.
func (d *CoreDialer) dialTunnel(ctx context.Context, r *model.PreparedRequest) (net.Conn, error) {
	proxy := r.Proxy()
	conn, err := d.dialTCP(ctx, r.Address())
	if err != nil {
		return nil, err
	}
	if proxy.Scheme == "https" {
		conn, err = d.handshake(ctx, conn, proxyHostname(proxy.Host))
		if err != nil {
			return nil, err
		}
	}

	origin := r.OriginAddress()
	connect := "CONNECT " + origin + " HTTP/1.1\r\nHost: " + origin + "\r\n\r\n"
	if _, err := conn.Write([]byte(connect)); err != nil {
		conn.Close()
		return nil, err
	}
	if err := readTunnelResponse(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return d.handshake(ctx, conn, r.U.Hostname())
}

// readTunnelResponse consumes the proxy's reply to CONNECT. Anything but a
// 2xx leaves the tunnel unusable.
func readTunnelResponse(conn net.Conn) error {
	p := codec.New()
	p.SetNoBody() // CONNECT replies carry no payload
	buf := make([]byte, 4096)
	for !p.HeadersComplete() {
		n, err := conn.Read(buf)
		if err != nil {
			return fmt.Errorf("dialer: reading proxy response: %w", err)
		}
		consumed, perr := p.Feed(buf[:n])
		if perr != nil || consumed != n {
			return fmt.Errorf("dialer: malformed proxy response: %v", perr)
		}
	}
	if code := p.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("dialer: proxy refused tunnel: %s", p.Status())
	}
	return nil
}

func proxyHostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
