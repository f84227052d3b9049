package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/arklim/social-identity/internal/infra/config"
)

// ShutdownFunc flushes and stops telemetry exporters.
type ShutdownFunc func(context.Context) error

// Attach installs the global tracer provider and W3C propagators when tracing
// is enabled and returns the matching shutdown hook. Disabled tracing yields a no-op hook.
func Attach(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (ShutdownFunc, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if !cfg.Telemetry.Enabled {
		logger.Info("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	settings := cfg.Telemetry
	if settings.ServiceName == "" {
		settings.ServiceName = cfg.App.Name
	}

	tp, err := newTracerProvider(ctx, settings, cfg.App.Env)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracer provider initialized",
		zap.String("otlp_endpoint", settings.OTLPEndpoint),
		zap.String("service_name", settings.ServiceName),
		zap.Float64("sampling_rate", settings.SamplingRate),
	)

	return func(ctx context.Context) error {
		logger.Info("shutting down tracer provider")
		ctx, cancel := context.WithTimeout(ctx, exporterTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer provider: %w", err)
		}
		return nil
	}, nil
}
