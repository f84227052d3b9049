package interceptors

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/stats"
)

// TracingOptions customises span creation for inbound gRPC calls.
type TracingOptions struct {
	TracerProvider trace.TracerProvider
	Propagators    propagation.TextMapPropagator
	// SkipMethods lists full method names that never get a span, e.g. health checks.
	SkipMethods []string
	Additional  []otelgrpc.Option
}

// NewTracingHandler returns a stats handler that opens a server span per call.
// Globals set by telemetry.Attach are used when no provider or propagator is given.
func NewTracingHandler(opts TracingOptions) stats.Handler {
	options := make([]otelgrpc.Option, 0, len(opts.Additional)+3)
	if opts.TracerProvider != nil {
		options = append(options, otelgrpc.WithTracerProvider(opts.TracerProvider))
	}
	if opts.Propagators != nil {
		options = append(options, otelgrpc.WithPropagators(opts.Propagators))
	}
	if len(opts.SkipMethods) > 0 {
		skip := make(map[string]struct{}, len(opts.SkipMethods))
		for _, m := range opts.SkipMethods {
			skip[m] = struct{}{}
		}
		options = append(options, otelgrpc.WithFilter(func(info *stats.RPCTagInfo) bool {
			_, skipped := skip[info.FullMethodName]
			return !skipped
		}))
	}
	options = append(options, opts.Additional...)

	return otelgrpc.NewServerHandler(options...)
}
