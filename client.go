package evhttp

import (
	"github.com/evwire/evhttp/internal"
	"github.com/evwire/evhttp/ws"
)

// Client is the exchange engine: pooled connections, cookie jar, proxies,
// hooks and upgrade handlers behind an asynchronous submit API.
type Client = internal.Client

// NewClient builds a ready to use client. The websocket upgrade handler is
// pre-registered so ws:// and wss:// requests resolve to a *ws.Conn via
// Response.Upgraded; pass options to override or extend.
func NewClient(opts ...Option) *Client {
	opts = append([]Option{WithUpgradeHandler("websocket", ws.Upgrade)}, opts...)
	return internal.NewClient(opts...)
}
