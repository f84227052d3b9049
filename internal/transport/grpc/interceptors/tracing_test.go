package interceptors

import (
	"context"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc/stats"
)

func TestTracingHandlerSkipsConfiguredMethods(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	handler := NewTracingHandler(TracingOptions{
		TracerProvider: tp,
		SkipMethods:    []string{"/grpc.health.v1.Health/Check"},
	})

	run := func(method string) {
		ctx := handler.TagRPC(context.Background(), &stats.RPCTagInfo{FullMethodName: method})
		handler.HandleRPC(ctx, &stats.End{})
	}

	run("/grpc.health.v1.Health/Check")
	run("/grpc.reflection.v1.ServerReflection/ServerReflectionInfo")

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	if got := spans[0].Name(); !strings.HasSuffix(got, "ServerReflection/ServerReflectionInfo") {
		t.Fatalf("unexpected span name %q", got)
	}
}
