package model

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMalformedURL is wrapped around any URL that fails to parse at Prepare
// time. Construction fails fast, nothing is dialed.
var ErrMalformedURL = errors.New("evhttp: malformed url")

var schemePorts = map[string]string{
	"http": "80", "https": "443", "ws": "80", "wss": "443",
}

// Proxy is the scheme+host pair a request physically connects through.
type Proxy struct {
	Scheme string
	Host   string
}

// ConnKey determines which pooled connection class a request may reuse.
type ConnKey struct {
	Scheme  string
	Address string
	Timeout time.Duration
}

// PreparedRequest is a Request bound to a parsed URL with resolved headers.
// It is the unit the client submits to a connection; Encode renders it.
type PreparedRequest struct {
	*Request

	U          *url.URL
	Header     http.Header
	HeaderHost string

	ContentLength int64

	// Body keeps the encoded payload when Expect: 100-continue withholds
	// it from the initial write; the consumer flushes it on a 100.
	Body []byte

	proxy *Proxy
}

// Prepare parses the URL and resolves the header set for this hop.
// User supplied Host headers take priority over the URL host.
func (r *Request) Prepare() (*PreparedRequest, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q misses scheme or host", ErrMalformedURL, r.URL)
	}
	if _, ok := schemePorts[u.Scheme]; !ok {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrMalformedURL, u.Scheme)
	}

	headers := r.Header.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	host := u.Host
	for k, v := range headers {
		if strings.EqualFold(k, "host") {
			if len(v) != 0 {
				host = v[0]
			}
			delete(headers, k)
		}
	}

	return &PreparedRequest{
		Request: r, U: u,
		Header: headers, HeaderHost: host,
		ContentLength: -1,
	}, nil
}

// SetProxy redirects where this request physically connects while keeping
// the request URL pointed at the origin.
func (r *PreparedRequest) SetProxy(scheme, host string) {
	r.proxy = &Proxy{Scheme: scheme, Host: host}
}

func (r *PreparedRequest) Proxy() *Proxy { return r.proxy }

// Scheme is the effective scheme used for connection setup. With a proxy set
// it is the lexicographically greater of origin and proxy scheme, which
// upgrades plain-to-TLS tunnels ("http" < "https"). This is a compatibility
// rule carried over from the original engine, not a security judgement.
func (r *PreparedRequest) Scheme() string {
	if r.proxy != nil && r.proxy.Scheme > r.U.Scheme {
		return r.proxy.Scheme
	}
	return r.U.Scheme
}

// Address is the host:port the connection is dialed to: the proxy when one
// is set, the origin otherwise.
func (r *PreparedRequest) Address() string {
	if r.proxy != nil {
		return hostPort(r.proxy.Scheme, r.proxy.Host)
	}
	return hostPort(r.U.Scheme, r.U.Host)
}

// OriginAddress is the origin host:port regardless of proxying, used for
// CONNECT tunnels.
func (r *PreparedRequest) OriginAddress() string {
	return hostPort(r.U.Scheme, r.U.Host)
}

// Key identifies the pooled connection class this request may reuse.
func (r *PreparedRequest) Key() ConnKey {
	return ConnKey{Scheme: r.Scheme(), Address: r.Address(), Timeout: r.Timeout}
}

// FullURL is the absolute URL of this hop without the fragment.
func (r *PreparedRequest) FullURL() string {
	u := *r.U
	u.Fragment = ""
	return u.String()
}

// IsWebsocket reports whether this request targets a ws/wss URL.
func (r *PreparedRequest) IsWebsocket() bool {
	return r.U.Scheme == "ws" || r.U.Scheme == "wss"
}

// TLS reports whether the dialed connection needs a TLS handshake.
func (r *PreparedRequest) TLS() bool {
	s := r.Scheme()
	return s == "https" || s == "wss"
}

// firstLine renders the request line. Proxied plaintext requests use the
// absolute form, everything else the origin form.
func (r *PreparedRequest) firstLine() string {
	if r.proxy != nil && !r.TLS() {
		return r.Method + " " + r.FullURL() + " HTTP/1.1"
	}
	target := r.U.RequestURI()
	if target == "" {
		target = "/"
	}
	return r.Method + " " + target + " HTTP/1.1"
}

func hostPort(scheme, host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, schemePorts[scheme])
}
