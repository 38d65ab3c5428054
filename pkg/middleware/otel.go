package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for gridwire servers.
const defaultTracerName = "gridwire"

// RequestHandler is the handler shape the tracing wrapper decorates: a
// 4-character request kind, an opaque request body, an opaque reply body.
// pkg/server adapts its request-manager handlers through this.
type RequestHandler func(ctx context.Context, kind string, data []byte) ([]byte, error)

// OTelConfig configures the OpenTelemetry request tracing.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "gridwire").
	TracerName string

	// IncludePeer includes the peer address in spans when the context
	// carries one (see WithPeer). Enabled by default.
	IncludePeer bool

	// Filter determines which request kinds to trace. Return true to
	// trace the request, false to skip. If nil, all requests are traced.
	Filter func(kind string) bool

	// AttributeExtractor extracts custom attributes for each traced
	// request.
	AttributeExtractor func(kind string, data []byte) []attribute.KeyValue

	// tracer is the resolved tracer instance.
	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry request tracing.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithIncludePeer enables or disables the peer address attribute.
func WithIncludePeer(include bool) OTelOption {
	return func(c *OTelConfig) {
		c.IncludePeer = include
	}
}

// WithRequestFilter sets a filter function for request kinds.
func WithRequestFilter(filter func(kind string) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(kind string, data []byte) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

// defaultOTelConfig returns the default tracing configuration.
func defaultOTelConfig() OTelConfig {
	return OTelConfig{
		TracerName:  defaultTracerName,
		IncludePeer: true,
	}
}

// OpenTelemetry returns a wrapper that traces request handling.
//
// The wrapper creates a span per handled request carrying the request
// kind, body sizes and (optionally) the peer address, records handler
// errors, and passes the span context to the handler for downstream
// propagation.
//
// The tracer comes from the global OpenTelemetry tracer provider;
// configure it in main() before starting the server:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func OpenTelemetry(opts ...OTelOption) func(RequestHandler) RequestHandler {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}

	// Resolve tracer from global provider.
	config.tracer = otel.Tracer(config.TracerName)

	return func(next RequestHandler) RequestHandler {
		return func(ctx context.Context, kind string, data []byte) ([]byte, error) {
			if config.Filter != nil && !config.Filter(kind) {
				return next(ctx, kind, data)
			}

			attrs := []attribute.KeyValue{
				attribute.String("gridwire.request_kind", kind),
				attribute.Int("gridwire.request_bytes", len(data)),
			}
			if config.IncludePeer {
				if peer := PeerFromContext(ctx); peer != "" {
					attrs = append(attrs, attribute.String("gridwire.peer", peer))
				}
			}
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(kind, data)...)
			}

			spanCtx, span := config.tracer.Start(
				ctx,
				"gridwire.request "+kind,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			reply, err := next(spanCtx, kind, data)

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
				span.SetAttributes(attribute.Int("gridwire.reply_bytes", len(reply)))
			}
			return reply, err
		}
	}
}

// peerKey carries the peer address through the request context.
type peerKey struct{}

// WithPeer returns a context carrying the peer address, picked up by the
// tracing wrapper as the gridwire.peer attribute.
func WithPeer(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, peerKey{}, addr)
}

// PeerFromContext returns the peer address stored with WithPeer, or "".
func PeerFromContext(ctx context.Context) string {
	if peer, ok := ctx.Value(peerKey{}).(string); ok {
		return peer
	}
	return ""
}
