package evhttp

import (
	"net/http"

	"github.com/evwire/evhttp/internal"
	"github.com/evwire/evhttp/internal/model"
)

type Header = http.Header
type Request = model.Request
type PreparedRequest = model.PreparedRequest
type FormFile = model.FormFile

// Response is the resolved outcome of an exchange: status, headers,
// buffered or streamed payload, redirect history, upgrade result.
type Response = internal.Response

// Pending is the completion future returned by Client.Submit.
type Pending = internal.Pending

// Stream iterates a response payload chunk by chunk.
type Stream = internal.Stream

type Hook = internal.Hook
type UpgradeHandler = internal.UpgradeHandler
type Option = internal.Option

type StatusError = internal.StatusError

var (
	ErrProtocol         = internal.ErrProtocol
	ErrTooManyRedirects = internal.ErrTooManyRedirects
	ErrStreamConsumed   = internal.ErrStreamConsumed
	ErrMalformedURL     = model.ErrMalformedURL
)

var (
	WithHeaders           = internal.WithHeaders
	WithUserAgent         = internal.WithUserAgent
	WithLogger            = internal.WithLogger
	WithTracer            = internal.WithTracer
	WithCookieJar         = internal.WithCookieJar
	WithoutCookies        = internal.WithoutCookies
	WithProxies           = internal.WithProxies
	WithNoProxy           = internal.WithNoProxy
	WithRedirects         = internal.WithRedirects
	WithMaxRedirects      = internal.WithMaxRedirects
	WithThrottle          = internal.WithThrottle
	WithHook              = internal.WithHook
	WithUpgradeHandler    = internal.WithUpgradeHandler
	WithDialer            = internal.WithDialer
	WithTimeout           = internal.WithTimeout
	WithTLSConfig         = internal.WithTLSConfig
	WithResolve           = internal.WithResolve
	WithMultipartEncoding = internal.WithMultipartEncoding
	WithoutDecompression  = internal.WithoutDecompression
	WithWaitContinue      = internal.WithWaitContinue
)
