package tautan

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ambiyansyah-risyal/tautan"

// requestTracer records one span per pipeline call.
type requestTracer struct {
	tracer trace.Tracer
}

func newRequestTracer(tp trace.TracerProvider) *requestTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &requestTracer{tracer: tp.Tracer(tracerName)}
}

func (t *requestTracer) start(ctx context.Context, method, path string, protected, cached bool) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "tautan.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.Bool("tautan.protected", protected),
			attribute.Bool("tautan.cacheable", cached),
		),
	)
}

// inject propagates the span context into outgoing headers.
func (t *requestTracer) inject(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}

func (t *requestTracer) end(span trace.Span, attempts int, cacheHit bool, err *APIError) {
	span.SetAttributes(
		attribute.Int("tautan.attempts", attempts),
		attribute.Bool("tautan.cache_hit", cacheHit),
	)

	if err != nil {
		span.SetAttributes(attribute.String("tautan.error.kind", string(err.Kind)))
		if err.StatusCode > 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", err.StatusCode))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Message)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}
