// Package ws implements the client side of RFC 6455 websockets on top of
// an upgraded connection. The HTTP handshake itself is carried out by the
// client engine; this package validates the accept key and frames messages.
package ws

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net"

	"github.com/evwire/evhttp/internal"
)

const acceptGUID = "258EAFA5-E15A-47C6-BB5A-C5AB0DC85B11"

// ErrHandshake is returned when the server's Sec-WebSocket-Accept does not
// match the key sent with the upgrade request.
var ErrHandshake = errors.New("ws: handshake validation failed")

// AcceptKey derives the Sec-WebSocket-Accept value for a handshake key.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Upgrade is the handler registered for the "websocket" upgrade token. It
// validates the accept key against the request's nonce and wraps the raw
// connection in a frame codec.
func Upgrade(conn net.Conn, r *internal.Response) (interface{}, error) {
	key := r.RequestHeaders().Get("Sec-WebSocket-Key")
	accept := r.Headers().Get("Sec-Websocket-Accept")
	if key == "" || accept != AcceptKey(key) {
		return nil, fmt.Errorf("%w: accept %q for key %q", ErrHandshake, accept, key)
	}
	return NewConn(conn), nil
}
