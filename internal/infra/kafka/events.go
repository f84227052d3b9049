package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/social-identity/internal/core/domain"
	"github.com/arklim/social-identity/internal/core/port"
	"github.com/arklim/social-identity/internal/infra/config"
)

const schemaVersion = "1.0"

const (
	eventUserRegistered = "user.registered"
	eventUserVerified   = "user.verified"
	eventPasswordReset  = "user.password_reset"
	eventCodeIssued     = "code.issued"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	topic := p.producer.TopicName(eventType)

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: topic,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes identity.user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string    `json:"user_id"`
		Email        string    `json:"email"`
		FullName     string    `json:"full_name"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		UserID:       event.UserID,
		Email:        event.Email,
		FullName:     event.FullName,
		RegisteredAt: event.RegisteredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, eventUserRegistered, event.UserID, event.RegisteredAt, payload)
}

// PublishUserVerified publishes identity.user.verified events.
func (p *EventPublisher) PublishUserVerified(ctx context.Context, event domain.UserVerifiedEvent) error {
	payload := struct {
		UserID     string    `json:"user_id"`
		Email      string    `json:"email"`
		VerifiedAt time.Time `json:"verified_at"`
	}{
		UserID:     event.UserID,
		Email:      event.Email,
		VerifiedAt: event.VerifiedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, eventUserVerified, event.UserID, event.VerifiedAt, payload)
}

// PublishPasswordReset publishes identity.user.password_reset events.
func (p *EventPublisher) PublishPasswordReset(ctx context.Context, event domain.PasswordResetEvent) error {
	payload := struct {
		UserID  string    `json:"user_id"`
		ResetAt time.Time `json:"reset_at"`
	}{
		UserID:  event.UserID,
		ResetAt: event.ResetAt.UTC(),
	}

	return p.publish(ctx, event.EventID, eventPasswordReset, event.UserID, event.ResetAt, payload)
}

// PublishCodeIssued publishes identity.code.issued events. The code value is never included.
func (p *EventPublisher) PublishCodeIssued(ctx context.Context, event domain.CodeIssuedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		Purpose   string    `json:"purpose"`
		IssuedAt  time.Time `json:"issued_at"`
		ExpiresAt time.Time `json:"expires_at"`
	}{
		UserID:    event.UserID,
		Purpose:   string(event.Purpose),
		IssuedAt:  event.IssuedAt.UTC(),
		ExpiresAt: event.ExpiresAt.UTC(),
	}

	return p.publish(ctx, event.EventID, eventCodeIssued, event.UserID, event.IssuedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
