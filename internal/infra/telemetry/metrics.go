package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "identity"

// Verification and login outcome labels.
const (
	ResultSuccess            = "success"
	ResultRejected           = "rejected"
	ResultError              = "error"
	ResultInvalidCredentials = "invalid_credentials"
	ResultNotFound           = "not_found"
	ResultVerificationNeeded = "verification_required"
)

// IdentityMetrics counts identity flow outcomes.
type IdentityMetrics struct {
	CodesIssued      *prometheus.CounterVec
	DeliveryFailures *prometheus.CounterVec
	Verifications    *prometheus.CounterVec
	Logins           *prometheus.CounterVec
	Registrations    *prometheus.CounterVec
	CodesCleared     prometheus.Counter
}

// NewIdentityMetrics registers the identity collectors with reg (default registerer when nil).
func NewIdentityMetrics(reg prometheus.Registerer) (*IdentityMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &IdentityMetrics{
		CodesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "codes_issued_total",
			Help:      "One-time codes persisted and handed to the mail channel, by purpose.",
		}, []string{"purpose"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "code_delivery_failures_total",
			Help:      "One-time codes the mail channel failed to deliver, by purpose.",
		}, []string{"purpose"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "code_verifications_total",
			Help:      "Code verification attempts, by purpose and result.",
		}, []string{"purpose", "result"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "logins_total",
			Help:      "Login attempts, by result.",
		}, []string{"result"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "registrations_total",
			Help:      "Registration initiations, by outcome.",
		}, []string{"outcome"}),
		CodesCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "codes_cleared_total",
			Help:      "Expired code slots reset by the sweeper.",
		}),
	}

	var err error
	if m.CodesIssued, err = RegisterOrReuse(reg, m.CodesIssued); err != nil {
		return nil, err
	}
	if m.DeliveryFailures, err = RegisterOrReuse(reg, m.DeliveryFailures); err != nil {
		return nil, err
	}
	if m.Verifications, err = RegisterOrReuse(reg, m.Verifications); err != nil {
		return nil, err
	}
	if m.Logins, err = RegisterOrReuse(reg, m.Logins); err != nil {
		return nil, err
	}
	if m.Registrations, err = RegisterOrReuse(reg, m.Registrations); err != nil {
		return nil, err
	}
	if m.CodesCleared, err = RegisterOrReuse(reg, m.CodesCleared); err != nil {
		return nil, err
	}

	return m, nil
}

// NewNopIdentityMetrics returns collectors that are never registered.
func NewNopIdentityMetrics() *IdentityMetrics {
	m, _ := NewIdentityMetrics(prometheus.NewRegistry())
	return m
}

// RegisterOrReuse registers c, returning the already-registered collector of the same type if present.
func RegisterOrReuse[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return c, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return c, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return c, nil
}

// CodeIssued records a persisted and dispatched code.
func (m *IdentityMetrics) CodeIssued(purpose string) {
	if m == nil {
		return
	}
	m.CodesIssued.WithLabelValues(purpose).Inc()
}

// DeliveryFailed records a mail channel failure.
func (m *IdentityMetrics) DeliveryFailed(purpose string) {
	if m == nil {
		return
	}
	m.DeliveryFailures.WithLabelValues(purpose).Inc()
}

// Verification records a verification outcome.
func (m *IdentityMetrics) Verification(purpose, result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(purpose, result).Inc()
}

// Login records a login outcome.
func (m *IdentityMetrics) Login(result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

// Registration records a register-initiate outcome.
func (m *IdentityMetrics) Registration(outcome string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(outcome).Inc()
}

// Cleared records slots reset by the sweeper.
func (m *IdentityMetrics) Cleared(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.CodesCleared.Add(float64(n))
}
