package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrChannel  = attribute.Key("perfmaster.channel")
	AttrOutcome  = attribute.Key("perfmaster.delivery.outcome")
	AttrMethod   = attribute.Key("http.request.method")
	AttrPath     = attribute.Key("url.path")
	AttrStatus   = attribute.Key("http.response.status_code")
	AttrPayload  = attribute.Key("perfmaster.payload.bytes")
	outcomeOK    = "success"
	outcomeError = "failure"
)

// Delivery describes one record sent to the backend.
type Delivery struct {
	Channel string // rest, web-vitals
	Method  string
	Path    string
}

func (d Delivery) spanName() string {
	switch {
	case d.Method != "" && d.Path != "":
		return d.Channel + " " + d.Method + " " + d.Path
	case d.Path != "":
		return d.Channel + " " + d.Path
	default:
		return d.Channel + " delivery"
	}
}

// StartDeliverySpan starts a client span around a delivery.
func StartDeliverySpan(ctx context.Context, tracer trace.Tracer, d Delivery) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{AttrChannel.String(d.Channel)}
	if d.Method != "" {
		attrs = append(attrs, AttrMethod.String(d.Method))
	}
	if d.Path != "" {
		attrs = append(attrs, AttrPath.String(d.Path))
	}
	return tracer.Start(ctx, d.spanName(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// EndDeliverySpan records the outcome and ends the span.
func EndDeliverySpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(AttrOutcome.String(outcomeError))
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(AttrOutcome.String(outcomeOK))
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
