package usecase

import (
	"time"

	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/social-identity/internal/core/port"
	"github.com/arklim/social-identity/internal/infra/telemetry"
)

const tracerName = "github.com/arklim/social-identity/internal/usecase"

var tracer = otel.Tracer(tracerName)

type options struct {
	logger  *zap.Logger
	now     func() time.Time
	metrics *telemetry.IdentityMetrics
	events  port.EventPublisher
}

// Option customises the identity services.
type Option func(*options)

// WithLogger sets the base logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics records flow outcomes on m.
func WithMetrics(m *telemetry.IdentityMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithEventPublisher publishes identity events after state changes.
func WithEventPublisher(p port.EventPublisher) Option {
	return func(o *options) {
		o.events = p
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}
