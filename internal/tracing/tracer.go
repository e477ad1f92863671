package tracing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies spans created by the action server.
const InstrumentationName = "github.com/harun/actionserver"

// Tracer starts spans and extracts remote parents from inbound headers.
type Tracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracer builds a Tracer. Nil arguments fall back to the global provider
// and propagator installed by InitOpenTelemetry.
func NewTracer(tp trace.TracerProvider, propagator propagation.TextMapPropagator) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	return &Tracer{
		tracer:     tp.Tracer(InstrumentationName),
		propagator: propagator,
	}
}

// Extract returns ctx carrying the remote span context found in headers.
// Missing or malformed headers leave ctx unchanged.
func (t *Tracer) Extract(ctx context.Context, headers http.Header) context.Context {
	if headers == nil {
		return ctx
	}
	return t.propagator.Extract(ctx, propagation.HeaderCarrier(headers))
}

// StartSpan starts a child of whatever span ctx carries.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	return withSpanTraceID(ctx, span), span
}

// RootSpan wraps next in one server span named "<METHOD> <path>". The span
// is ended exactly once whichever way next exits, and marked as an error on
// 5xx responses and panics. Panics are re-raised after the span ends.
func (t *Tracer) RootSpan(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := t.Extract(r.Context(), r.Header)
		ctx, span := t.StartSpan(ctx, r.Method+" "+r.URL.Path,
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		)
		if id := GetRequestID(ctx); id != "" {
			span.SetAttributes(attribute.String("request.id", id))
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			if rec := recover(); rec != nil {
				span.RecordError(fmt.Errorf("panic: %v", rec))
				span.SetStatus(codes.Error, "panic")
				span.End()
				panic(rec)
			}

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			span.SetAttributes(attribute.Int("http.response.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			span.End()
		}()

		next.ServeHTTP(ww, r.WithContext(ctx))
	})
}
