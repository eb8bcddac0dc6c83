package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func setupTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
	return tp, exporter
}

func TestIDsFromContext(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
	assert.Empty(t, SpanIDFromContext(context.Background()))

	tp, _ := setupTracer(t)
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	assert.Equal(t, span.SpanContext().TraceID().String(), TraceIDFromContext(ctx))
	assert.Equal(t, span.SpanContext().SpanID().String(), SpanIDFromContext(ctx))
	assert.Len(t, TraceIDFromContext(ctx), 32)
	assert.Len(t, SpanIDFromContext(ctx), 16)
}

func TestSetSpanAttributes(t *testing.T) {
	tp, exporter := setupTracer(t)

	// no span in context is a no-op
	SetSpanAttributes(context.Background(), attribute.String("ignored", "x"))

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	SetSpanAttributes(ctx, attribute.Int("responses.count", 4), attribute.String("survey.id", "s1"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, int64(4), attrs["responses.count"].AsInt64())
	assert.Equal(t, "s1", attrs["survey.id"].AsString())
}

func TestHTTPMiddleware(t *testing.T) {
	tp, exporter := setupTracer(t)

	var seenTraceID string
	handler := HTTPMiddleware("feedbackanalyzer")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTraceID = TraceIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	parentCtx, parent := tp.Tracer("client").Start(context.Background(), "client-call")
	req := httptest.NewRequest(http.MethodGet, "/api/surveys", nil)
	otel.GetTextMapPropagator().Inject(parentCtx, propagation.HeaderCarrier(req.Header))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	parent.End()

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, parent.SpanContext().TraceID().String(), seenTraceID)

	var server *tracetest.SpanStub
	spans := exporter.GetSpans()
	for i := range spans {
		if spans[i].Name == "GET /api/surveys" {
			server = &spans[i]
		}
	}
	require.NotNil(t, server, "server span not recorded")
	assert.Equal(t, trace.SpanKindServer, server.SpanKind)
	assert.Equal(t, parent.SpanContext().SpanID(), server.Parent.SpanID())
}
