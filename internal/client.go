package internal

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/evwire/evhttp/internal/dialer"
	"github.com/evwire/evhttp/internal/model"
)

// Hook runs after a hop's request is fully prepared and before it is
// written to the wire. Hooks may rewrite headers, typically to inject
// credentials. Returning an error aborts the exchange.
type Hook func(ctx context.Context, r *model.PreparedRequest) error

// UpgradeHandler takes ownership of the connection after a 101 and returns
// the object callers retrieve through Response.Upgraded. Handlers are
// registered per Upgrade token, lowercased.
type UpgradeHandler func(conn net.Conn, r *Response) (interface{}, error)

const defaultUserAgent = "evhttp/0.1"

// Client holds cross-request state: connection pools, the cookie jar,
// proxy configuration, hooks and upgrade handlers. A Client is safe for
// concurrent use; requests submitted through it progress independently.
type Client struct {
	headers      http.Header
	jar          *cookiejar.Jar
	storeCookies bool
	proxies      map[string]string
	noProxy      []string
	hooks        []Hook
	upgrades     map[string]UpgradeHandler
	dialer       dialer.Dialer
	limiter      *rate.Limiter

	logger *slog.Logger
	tracer trace.Tracer
	events *Events

	allowRedirects  bool
	maxRedirects    int
	encodeMultipart bool
	decompress      bool
	waitContinue    bool
	timeout         time.Duration
	userAgent       string

	wsKeyOnce sync.Once
	wsKey     string
}

// NewClient builds a client with pooled connections, a public-suffix aware
// cookie jar and proxy settings taken from the environment. Options
// override the defaults.
func NewClient(opts ...Option) *Client {
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	c := &Client{
		jar:             jar,
		storeCookies:    true,
		proxies:         envProxies(),
		noProxy:         envNoProxy(),
		upgrades:        map[string]UpgradeHandler{},
		dialer:          dialer.NewCoreDialer(),
		maxRedirects:    10,
		encodeMultipart: true,
		decompress:      true,
		userAgent:       defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.events = newEvents(c.logger, c.tracer)
	return c
}

// NewRequest builds a request carrying the client's per-request defaults.
// The caller mutates it freely before Submit.
func (c *Client) NewRequest(method, rawurl string) *model.Request {
	return &model.Request{
		Method:          strings.ToUpper(method),
		URL:             rawurl,
		AllowRedirects:  c.allowRedirects,
		MaxRedirects:    c.maxRedirects,
		EncodeMultipart: c.encodeMultipart,
		Decompress:      c.decompress,
		WaitContinue:    c.waitContinue,
		Timeout:         c.timeout,
	}
}

// Submit starts the exchange and returns immediately with its completion
// future. Redirect hops run behind the same future.
func (c *Client) Submit(ctx context.Context, req *model.Request) (*Pending, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	pending := newPending()
	c.startHop(ctx, req, pending)
	return pending, nil
}

// Do submits the request and waits for the exchange to resolve.
func (c *Client) Do(ctx context.Context, req *model.Request) (*Response, error) {
	pending, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return pending.Wait(ctx)
}

// Get issues a GET. Redirects are followed regardless of the client-wide
// default, matching common expectations for safe methods.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	req := c.NewRequest(http.MethodGet, url)
	req.AllowRedirects = true
	return c.Do(ctx, req)
}

// Options issues an OPTIONS request, following redirects.
func (c *Client) Options(ctx context.Context, url string) (*Response, error) {
	req := c.NewRequest(http.MethodOptions, url)
	req.AllowRedirects = true
	return c.Do(ctx, req)
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, c.NewRequest(http.MethodHead, url))
}

// Post issues a POST with the given body source, see model.Request.Data
// for the accepted shapes.
func (c *Client) Post(ctx context.Context, url string, data interface{}) (*Response, error) {
	req := c.NewRequest(http.MethodPost, url)
	req.Data = data
	return c.Do(ctx, req)
}

// Put issues a PUT with the given body source.
func (c *Client) Put(ctx context.Context, url string, data interface{}) (*Response, error) {
	req := c.NewRequest(http.MethodPut, url)
	req.Data = data
	return c.Do(ctx, req)
}

// Patch issues a PATCH with the given body source.
func (c *Client) Patch(ctx context.Context, url string, data interface{}) (*Response, error) {
	req := c.NewRequest(http.MethodPatch, url)
	req.Data = data
	return c.Do(ctx, req)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, c.NewRequest(http.MethodDelete, url))
}

// startHop prepares, dials and drives one hop asynchronously. Both the
// initial submit and redirect re-entries come through here.
func (c *Client) startHop(ctx context.Context, req *model.Request, pending *Pending) {
	go func() {
		pr, err := c.prepareHop(ctx, req)
		if err != nil {
			pending.resolve(nil, err)
			return
		}
		ctx, ev := c.events.start(ctx, pr)
		conn, err := c.dialer.Dial(ctx, pr)
		if err != nil {
			ev.finish(0, err)
			pending.resolve(nil, err)
			return
		}
		r := newResponse(ctx, c, pr, pending, conn, ev)
		if err := r.start(); err != nil {
			conn.Discard()
			ev.finish(0, err)
			pending.resolve(nil, err)
			return
		}
		r.readLoop()
	}()
}

// prepareHop resolves one hop's final header set: client defaults under
// the request's own headers, cookies, proxy selection, then hooks.
func (c *Client) prepareHop(ctx context.Context, req *model.Request) (*model.PreparedRequest, error) {
	pr, err := req.Prepare()
	if err != nil {
		return nil, err
	}
	if pr.IsWebsocket() {
		c.websocketHeaders(pr)
	} else {
		c.defaultHeaders(pr)
	}
	c.addCookies(pr)
	c.setProxy(pr)
	for _, hook := range c.hooks {
		if err := hook(ctx, pr); err != nil {
			return nil, err
		}
	}
	return pr, nil
}

// defaultHeaders fills in the client-wide header set where the request
// did not say otherwise.
func (c *Client) defaultHeaders(pr *model.PreparedRequest) {
	setDefault := func(k, v string) {
		if pr.Header.Get(k) == "" {
			pr.Header.Set(k, v)
		}
	}
	for k, vs := range c.headers {
		if _, ok := pr.Header[http.CanonicalHeaderKey(k)]; !ok {
			pr.Header[http.CanonicalHeaderKey(k)] = vs
		}
	}
	setDefault("User-Agent", c.userAgent)
	setDefault("Accept", "*/*")
	setDefault("Connection", "keep-alive")
	if pr.Decompress && !pr.Stream {
		setDefault("Accept-Encoding", "gzip, deflate")
	} else {
		setDefault("Accept-Encoding", "identity")
	}
}

// websocketHeaders renders the fixed handshake header set for ws/wss
// targets. The nonce is cached per client.
func (c *Client) websocketHeaders(pr *model.PreparedRequest) {
	pr.Header.Set("Connection", "Upgrade")
	pr.Header.Set("Upgrade", "websocket")
	pr.Header.Set("Sec-WebSocket-Version", "13")
	pr.Header.Set("Sec-WebSocket-Key", c.websocketKey())
	if pr.Header.Get("User-Agent") == "" {
		pr.Header.Set("User-Agent", c.userAgent)
	}
}

func (c *Client) websocketKey() string {
	c.wsKeyOnce.Do(func() {
		nonce := make([]byte, 16)
		rand.Read(nonce)
		c.wsKey = base64.StdEncoding.EncodeToString(nonce)
	})
	return c.wsKey
}

// addCookies renders the Cookie header from the jar plus the request's own
// cookie map, keeping any Cookie header the caller set directly.
func (c *Client) addCookies(pr *model.PreparedRequest) {
	carrier := &http.Request{Header: pr.Header}
	if c.storeCookies {
		for _, ck := range c.jar.Cookies(pr.U) {
			carrier.AddCookie(ck)
		}
	}
	for name, value := range pr.Request.Cookies {
		carrier.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

// extractCookies stores Set-Cookie headers into the jar. Runs at
// header-complete time on every hop, so redirect hops contribute too.
func (c *Client) extractCookies(r *Response) {
	c.jar.SetCookies(r.req.U, r.Cookies())
}

// setProxy picks a proxy for the request's scheme unless the target host
// matches the no-proxy list. Websocket schemes share the HTTP proxy
// configuration.
func (c *Client) setProxy(pr *model.PreparedRequest) {
	scheme := pr.U.Scheme
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}
	rawurl, ok := c.proxies[scheme]
	if !ok || rawurl == "" {
		return
	}
	host := pr.U.Hostname()
	for _, suffix := range c.noProxy {
		if suffix != "" && strings.HasSuffix(host, suffix) {
			return
		}
	}
	pu, err := url.Parse(rawurl)
	if err != nil || pu.Host == "" {
		return
	}
	pr.SetProxy(pu.Scheme, pu.Host)
}

// upgradeHandler resolves the handler for an Upgrade token. A 101 naming a
// protocol nobody registered is fatal for the exchange.
func (c *Client) upgradeHandler(name string) (string, UpgradeHandler, error) {
	proto := strings.ToLower(strings.TrimSpace(name))
	handler, ok := c.upgrades[proto]
	if !ok {
		return "", nil, fmt.Errorf("%w: no handler for %q upgrade", ErrProtocol, name)
	}
	return proto, handler, nil
}

// CanReuseConnection reports whether the connection that carried resp may
// go back to the pool. Only an explicit keep-alive signal qualifies.
func (c *Client) CanReuseConnection(resp *model.Response) bool {
	return resp.KeepAlive()
}

func envProxies() map[string]string {
	proxies := map[string]string{}
	for scheme, names := range map[string][]string{
		"http":  {"HTTP_PROXY", "http_proxy"},
		"https": {"HTTPS_PROXY", "https_proxy"},
	} {
		for _, name := range names {
			if v := os.Getenv(name); v != "" {
				proxies[scheme] = v
				break
			}
		}
	}
	return proxies
}

func envNoProxy() []string {
	raw := os.Getenv("NO_PROXY")
	if raw == "" {
		raw = os.Getenv("no_proxy")
	}
	out := []string{"localhost", "127.0.0.1"}
	if hostname, err := os.Hostname(); err == nil {
		out = append(out, hostname)
	}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
