package internal

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/evwire/evhttp/internal/codec"
	"github.com/evwire/evhttp/internal/model"
	"github.com/evwire/evhttp/netpool"
)

var redirectCodes = map[int]bool{301: true, 302: true, 303: true, 305: true, 307: true, 308: true}

type action int

const (
	actionNone action = iota
	actionReplaced
	actionContinued
	actionUpgraded
)

// Response is the protocol consumer bound to one hop's connection. It
// interprets parser events and decides control flow: continue the body,
// spawn a redirect through the client, hand off to an upgrade handler, or
// finish and resolve the shared future. All state transitions run inside
// the connection's read callback, so no locking is needed.
type Response struct {
	client  *Client
	ctx     context.Context
	req     *model.PreparedRequest
	parser  *codec.Parser
	conn    netpool.Conn
	pending *Pending
	events  *exchange
	stream  *Stream

	headers  http.Header // cached view, parsed at most once per request
	content  []byte      // accumulated body, lazily drained from the parser
	decoded  bool
	upgraded interface{}
	err      error

	wantRedirect bool
	continued    bool // the one-shot 100-continue reset already happened
	replaced     bool
	finished     bool
}

func newResponse(ctx context.Context, c *Client, req *model.PreparedRequest, pending *Pending, conn netpool.Conn, ev *exchange) *Response {
	p := codec.New()
	if req.Method == http.MethodHead {
		p.SetNoBody()
	}
	r := &Response{client: c, ctx: ctx, req: req, parser: p, conn: conn, pending: pending, events: ev}
	if req.Stream {
		r.stream = newStream()
	}
	return r
}

// start writes the encoded request to the connection. The state machine
// stays in its initial state until bytes arrive.
func (r *Response) start() error {
	wire, err := r.req.Encode()
	if err != nil {
		return err
	}
	_, err = r.conn.Write(wire)
	return err
}

// readLoop drives the consumer: it is the per-connection byte-arrival
// callback. It exits once the exchange is resolved, replaced or handed off.
func (r *Response) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.conn.Read(buf)
		if n > 0 {
			if r.onData(buf[:n]) {
				return
			}
		}
		if err != nil {
			r.onClosed(err)
			return
		}
	}
}

// onData feeds arriving bytes to the parser and runs the resulting
// transitions. It reports whether the read loop should stop.
func (r *Response) onData(data []byte) bool {
	for {
		hadHeaders := r.parser.HeadersComplete()
		n, err := r.parser.Feed(data)
		if err != nil {
			r.fail(fmt.Errorf("%w: %v", ErrProtocol, err))
			return true
		}
		data = data[n:]

		if r.parser.HeadersComplete() && !hadHeaders {
			act, err := r.handleHeaders(data)
			if err != nil {
				r.fail(err)
				return true
			}
			switch act {
			case actionReplaced, actionUpgraded:
				return true
			case actionContinued:
				// the parser was reset, the final response may already
				// sit behind the interim bytes
				if len(data) > 0 {
					continue
				}
				return false
			}
		}

		if r.stream != nil && r.stream.attached {
			if b := r.parser.RecvBody(); b != nil {
				r.stream.push(b)
			}
		}

		if r.parser.MessageComplete() {
			if len(data) > 0 {
				r.fail(fmt.Errorf("%w: %d trailing bytes after message", ErrProtocol, len(data)))
				return true
			}
			if r.wantRedirect {
				if err := r.redirect(); err != nil {
					r.fail(err)
				}
				return true
			}
			r.finish()
			return true
		}
		if len(data) > 0 {
			r.fail(fmt.Errorf("%w: parser rejected %d bytes", ErrProtocol, len(data)))
			return true
		}
		return false
	}
}

// onClosed handles end of stream: read-until-close bodies complete here,
// anything else is a truncated message or a transport failure.
func (r *Response) onClosed(readErr error) {
	if r.finished || r.replaced || r.upgraded != nil {
		return
	}
	if err := r.parser.Close(); err == nil && r.parser.MessageComplete() {
		if r.stream != nil && r.stream.attached {
			if b := r.parser.RecvBody(); b != nil {
				r.stream.push(b)
			}
		}
		if r.wantRedirect {
			if err := r.redirect(); err != nil {
				r.fail(err)
			}
			return
		}
		r.finish()
		return
	}
	if readErr == io.EOF {
		readErr = io.ErrUnexpectedEOF
	}
	r.fail(readErr)
}

// handleHeaders runs once per request lifetime, at the first transition
// into headers-complete: cookie extraction, then the redirect / continue /
// upgrade decision. rest carries bytes that arrived behind the header block
// and belong to the next protocol on an upgrade.
func (r *Response) handleHeaders(rest []byte) (action, error) {
	r.headers = r.parser.Headers()
	code := r.parser.StatusCode()
	r.events.headers(code)

	if r.client.storeCookies && len(r.headers.Values("Set-Cookie")) > 0 {
		r.client.extractCookies(r)
	}

	switch {
	case redirectCodes[code] && r.headers.Get("Location") != "" && r.req.AllowRedirects:
		r.wantRedirect = true
		if r.parser.MessageComplete() {
			return actionReplaced, r.redirect()
		}
		// decision deferred until the message completes
		return actionNone, nil
	case code == http.StatusContinue:
		if r.continued {
			return actionNone, fmt.Errorf("%w: repeated 100-continue", ErrProtocol)
		}
		r.continued = true
		r.headers = nil
		r.parser.Reset()
		if len(r.req.Body) > 0 {
			if _, err := r.conn.Write(r.req.Body); err != nil {
				return actionNone, err
			}
		}
		return actionContinued, nil
	case code == http.StatusSwitchingProtocols:
		return r.upgrade(rest)
	}

	if r.stream != nil {
		r.stream.connection(r.conn)
		// the exchange is complete for the caller once headers are in,
		// the body flows through the stream
		r.pending.resolve(r, nil)
	}
	return actionNone, nil
}

// redirect computes the absolute target and re-enters the client for the
// next hop, replacing this consumer on the shared future.
func (r *Response) redirect() error {
	if len(r.req.History) >= r.req.MaxRedirects {
		return ErrTooManyRedirects
	}
	target, err := resolveLocation(r.req.FullURL(), r.headers.Get("Location"))
	if err != nil {
		return err
	}
	r.events.redirect(target)
	r.releaseConn()
	r.replaced = true
	r.events.finish(r.parser.StatusCode(), nil)

	next := r.req.Request.Redirected(r.parser.StatusCode(), target)
	next.History = append(next.History, r.snapshot())
	r.client.startHop(r.ctx, next, r.pending)
	return nil
}

func (r *Response) upgrade(rest []byte) (action, error) {
	proto, handler, err := r.client.upgradeHandler(r.headers.Get("Upgrade"))
	if err != nil {
		return actionNone, err
	}
	conn := r.conn.Detach()
	if len(rest) > 0 {
		conn = &bufferedConn{Conn: conn, buf: bytes.NewReader(rest)}
	}
	obj, err := handler(conn, r)
	if err != nil {
		conn.Close()
		return actionNone, err
	}
	r.upgraded = obj
	r.finished = true
	r.events.upgrade(proto)
	r.events.finish(r.parser.StatusCode(), nil)
	r.pending.resolve(r, nil)
	return actionUpgraded, nil
}

// finish marks the exchange done and resolves the future with this
// consumer, unless a redirect or upgrade already replaced it.
func (r *Response) finish() {
	if r.finished || r.replaced {
		return
	}
	r.finished = true
	if r.stream != nil && r.stream.attached {
		r.stream.finish()
	} else {
		r.releaseConn()
	}
	r.events.finish(r.parser.StatusCode(), nil)
	r.pending.resolve(r, nil)
}

func (r *Response) fail(err error) {
	if r.finished || r.replaced {
		return
	}
	r.finished = true
	r.err = err
	r.conn.Discard()
	if r.stream != nil {
		r.stream.finish()
	}
	r.events.finish(r.parser.StatusCode(), err)
	r.pending.resolve(r, err)
}

// releaseConn applies the reuse policy: back to the pool only on an
// explicit keep-alive signal, retired otherwise.
func (r *Response) releaseConn() {
	if r.client.CanReuseConnection(&model.Response{Header: r.headers}) {
		r.conn.Release()
	} else {
		r.conn.Discard()
	}
}

func (r *Response) snapshot() *model.Response {
	return &model.Response{
		URL:        r.req.FullURL(),
		Proto:      r.parser.Proto(),
		Status:     r.parser.Status(),
		StatusCode: r.parser.StatusCode(),
		Header:     r.headers.Clone(),
	}
}

// resolveLocation turns a Location header into an absolute target: scheme
// relative locations inherit the current scheme, relative ones are joined
// against the current URL, and the result is re-encoded per RFC 3986.
func resolveLocation(current, location string) (string, error) {
	if strings.HasPrefix(location, "//") {
		cur, err := url.Parse(current)
		if err != nil {
			return "", fmt.Errorf("%w: %v", model.ErrMalformedURL, err)
		}
		location = cur.Scheme + ":" + location
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("%w: redirect location: %v", model.ErrMalformedURL, err)
	}
	if loc.Host != "" {
		return loc.String(), nil
	}
	cur, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrMalformedURL, err)
	}
	return cur.ResolveReference(loc).String(), nil
}

// StatusCode is the final hop's status code, 0 if the exchange failed
// before any status line arrived.
func (r *Response) StatusCode() int { return r.parser.StatusCode() }

// Status is the final hop's full status line reason, e.g. "200 OK".
func (r *Response) Status() string { return r.parser.Status() }

// Proto is the negotiated protocol version, e.g. "HTTP/1.1".
func (r *Response) Proto() string { return r.parser.Proto() }

// Headers returns the response header block. Nil until headers complete.
func (r *Response) Headers() http.Header { return r.headers }

// Request is the request of the final hop, redirect rewrites included.
func (r *Response) Request() *model.Request { return r.req.Request }

// RequestHeaders is the header set actually written to the wire for the
// final hop, client defaults and hook rewrites included.
func (r *Response) RequestHeaders() http.Header { return r.req.Header }

// URL is the final hop's absolute URL.
func (r *Response) URL() string { return r.req.FullURL() }

// History lists the intermediate responses that led here, oldest first.
func (r *Response) History() []*model.Response { return r.req.History }

// Err is the transport or protocol failure that ended the exchange, nil on
// a clean completion of any status code.
func (r *Response) Err() error { return r.err }

// Upgraded returns the object produced by the upgrade handler after a 101,
// nil otherwise.
func (r *Response) Upgraded() interface{} { return r.upgraded }

// Stream returns the body stream for requests submitted in streaming mode,
// nil otherwise.
func (r *Response) Stream() *Stream { return r.stream }

// Cookies parses the Set-Cookie headers of the final hop.
func (r *Response) Cookies() []*http.Cookie {
	return (&http.Response{Header: r.headers}).Cookies()
}

// Content returns the full response payload, decoding gzip and deflate
// transfer encodings when the request asked for decompression. Streamed
// exchanges drain the remaining stream instead, so the result is partial if
// iteration already started.
func (r *Response) Content() ([]byte, error) {
	if r.stream != nil && r.stream.attached {
		return r.stream.Read(r.ctx)
	}
	if !r.decoded {
		r.decoded = true
		body := r.parser.RecvBody()
		if r.req.Decompress && len(body) > 0 {
			decoded, err := decode(body, r.headers.Get("Content-Encoding"))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
			}
			body = decoded
		}
		r.content = body
	}
	return r.content, nil
}

// ContentString is Content as a string.
func (r *Response) ContentString() (string, error) {
	b, err := r.Content()
	return string(b), err
}

// JSON decodes the payload into v.
func (r *Response) JSON(v interface{}) error {
	b, err := r.Content()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// RaiseForStatus converts a non-2xx outcome into a StatusError carrying the
// status, headers and payload. An exchange that failed before any status
// arrived yields the underlying transport error instead.
func (r *Response) RaiseForStatus() error {
	if r.err != nil {
		return r.err
	}
	code := r.parser.StatusCode()
	if code == 0 {
		return fmt.Errorf("%w: no status received", ErrProtocol)
	}
	if code >= 200 && code < 300 {
		return nil
	}
	body, _ := r.Content()
	return &StatusError{
		URL:        r.URL(),
		StatusCode: code,
		Status:     r.parser.Status(),
		Header:     r.headers,
		Body:       body,
	}
}

func decode(body []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return body, nil
	}
}

// bufferedConn replays bytes that arrived behind the 101 header block
// before reading from the wire again.
type bufferedConn struct {
	net.Conn
	buf *bytes.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	if c.buf.Len() > 0 {
		return c.buf.Read(p)
	}
	return c.Conn.Read(p)
}
