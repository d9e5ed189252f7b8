package internal

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/evwire/evhttp/internal/model"
)

// Events emits the observable lifecycle of an exchange (pre-request,
// header-complete, redirect, upgrade, finished) as a client span with span
// events, mirrored to structured logs. Every hop gets its own span and ULID.
type Events struct {
	tracer trace.Tracer
	logger *slog.Logger
}

func newEvents(logger *slog.Logger, tracer trace.Tracer) *Events {
	if tracer == nil {
		tracer = otel.Tracer("github.com/evwire/evhttp")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{tracer: tracer, logger: logger}
}

type exchange struct {
	span trace.Span
	log  *slog.Logger
}

func (e *Events) start(ctx context.Context, r *model.PreparedRequest) (context.Context, *exchange) {
	id := ulid.Make().String()
	ctx, span := e.tracer.Start(ctx, r.Method+" "+r.U.Host,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.full", r.FullURL()),
			attribute.String("evhttp.exchange_id", id),
			attribute.Int("evhttp.hop", len(r.History)),
		),
	)
	log := e.logger.With("exchange", id, "method", r.Method, "url", r.FullURL())
	log.Debug("request started")
	return ctx, &exchange{span: span, log: log}
}

func (x *exchange) headers(code int) {
	x.span.AddEvent("header-complete", trace.WithAttributes(
		attribute.Int("http.response.status_code", code)))
	x.log.Debug("headers received", "status", code)
}

func (x *exchange) redirect(target string) {
	x.span.AddEvent("redirect", trace.WithAttributes(
		attribute.String("evhttp.redirect_target", target)))
	x.log.Debug("redirecting", "target", target)
}

func (x *exchange) upgrade(proto string) {
	x.span.AddEvent("upgrade", trace.WithAttributes(
		attribute.String("evhttp.upgrade_protocol", proto)))
	x.log.Debug("protocol upgraded", "protocol", proto)
}

func (x *exchange) finish(code int, err error) {
	if code > 0 {
		x.span.SetAttributes(attribute.Int("http.response.status_code", code))
	}
	if err != nil {
		x.span.RecordError(err)
		x.span.SetStatus(codes.Error, err.Error())
		x.log.Debug("request failed", "err", err)
	} else {
		x.span.SetStatus(codes.Ok, "")
		x.log.Debug("request finished", "status", code)
	}
	x.span.End()
}
