package internal

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/evwire/evhttp/internal/dialer"
)

// Option configures a Client at construction time.
type Option func(*Client)

// WithHeaders sets client-wide default headers, applied to every request
// under the request's own headers.
func WithHeaders(h http.Header) Option {
	return func(c *Client) { c.headers = h }
}

// WithUserAgent overrides the default User-Agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger routes lifecycle logs to the given logger instead of
// slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer emits exchange spans through the given tracer instead of the
// global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithCookieJar replaces the default public-suffix aware jar.
func WithCookieJar(jar *cookiejar.Jar) Option {
	return func(c *Client) { c.jar = jar }
}

// WithoutCookies disables cookie storage and replay entirely. Cookies set
// explicitly on a request are still sent.
func WithoutCookies() Option {
	return func(c *Client) { c.storeCookies = false }
}

// WithProxies maps URL schemes to proxy URLs, replacing whatever the
// environment provided.
func WithProxies(proxies map[string]string) Option {
	return func(c *Client) { c.proxies = proxies }
}

// WithNoProxy appends host suffixes that bypass proxying.
func WithNoProxy(suffixes ...string) Option {
	return func(c *Client) { c.noProxy = append(c.noProxy, suffixes...) }
}

// WithRedirects sets the client-wide redirect default for methods that do
// not force their own.
func WithRedirects(follow bool) Option {
	return func(c *Client) { c.allowRedirects = follow }
}

// WithMaxRedirects bounds redirect chains. The default is 10.
func WithMaxRedirects(n int) Option {
	return func(c *Client) { c.maxRedirects = n }
}

// WithThrottle rate limits request submission across the whole client.
func WithThrottle(limit rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(limit, burst) }
}

// WithHook appends a pre-request hook, run on every hop.
func WithHook(h Hook) Option {
	return func(c *Client) { c.hooks = append(c.hooks, h) }
}

// WithUpgradeHandler registers a handler for an Upgrade token.
func WithUpgradeHandler(proto string, h UpgradeHandler) Option {
	return func(c *Client) { c.upgrades[proto] = h }
}

// WithDialer replaces the connection layer wholesale.
func WithDialer(d dialer.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithTimeout sets the default dial timeout carried by new requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithTLSConfig sets the TLS configuration for origin handshakes. Only
// applies while the client still uses the core dialer.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		if d, ok := c.dialer.(*dialer.CoreDialer); ok {
			d.TLSConfig = cfg
		}
	}
}

// WithResolve installs custom name resolution: a DNS server override,
// a fixed network, or static host mappings. Only applies while the client
// still uses the core dialer.
func WithResolve(rc *dialer.ResolveConfig) Option {
	return func(c *Client) {
		if d, ok := c.dialer.(*dialer.CoreDialer); ok {
			d.ResolveConfig = rc
		}
	}
}

// WithMultipartEncoding sets whether structured bodies with files, or
// without a content type, default to multipart instead of urlencoded.
func WithMultipartEncoding(enabled bool) Option {
	return func(c *Client) { c.encodeMultipart = enabled }
}

// WithoutDecompression leaves content encodings untouched and advertises
// identity only.
func WithoutDecompression() Option {
	return func(c *Client) { c.decompress = false }
}

// WithWaitContinue makes requests with a body send Expect: 100-continue
// and withhold the payload until the server commits.
func WithWaitContinue() Option {
	return func(c *Client) { c.waitContinue = true }
}
