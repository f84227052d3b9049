package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/social-identity/internal/core/domain"
	"github.com/arklim/social-identity/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer(buffer int) *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, buffer),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T, buffer int) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()
	asyncProducer := newFakeAsyncProducer(buffer)
	producer := newProducer(asyncProducer, config.KafkaSettings{TopicPrefix: "identity"}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = producer.Close() })

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "social-identity",
		Env:  "test",
	}, zaptest.NewLogger(t))
	return publisher, asyncProducer
}

func receiveEnvelope(t *testing.T, input chan *sarama.ProducerMessage) (*sarama.ProducerMessage, map[string]any) {
	t.Helper()
	select {
	case msg := <-input:
		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}
		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		return msg, envelope
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
		return nil, nil
	}
}

func TestPublishUserVerified(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t, 1)

	verifiedAt := time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC)
	event := domain.UserVerifiedEvent{
		EventID:    "event-123",
		UserID:     "user-789",
		Email:      "jane@example.com",
		VerifiedAt: verifiedAt,
	}

	if err := publisher.PublishUserVerified(context.Background(), event); err != nil {
		t.Fatalf("PublishUserVerified returned error: %v", err)
	}

	msg, envelope := receiveEnvelope(t, asyncProducer.input)
	if msg.Topic != "identity.user.verified" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	key, _ := msg.Key.Encode()
	if string(key) != "user-789" {
		t.Fatalf("expected message keyed by user id, got %q", key)
	}
	if got := envelope["event_type"]; got != "identity.user.verified" {
		t.Fatalf("unexpected event_type: %v", got)
	}
	if got := envelope["event_id"]; got != "event-123" {
		t.Fatalf("unexpected event_id: %v", got)
	}
	if got := envelope["timestamp"]; got != verifiedAt.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp: %v", got)
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	if payload["email"] != "jane@example.com" {
		t.Fatalf("unexpected payload email: %v", payload["email"])
	}

	metadata, ok := envelope["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
	}
	if metadata["service"] != "social-identity" || metadata["environment"] != "test" {
		t.Fatalf("unexpected metadata: %v", metadata)
	}
}

func TestPublishCodeIssuedOmitsCode(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t, 1)

	issuedAt := time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC)
	event := domain.CodeIssuedEvent{
		UserID:    "user-1",
		Purpose:   domain.CodePurposeForgotPassword,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(10 * time.Minute),
	}

	if err := publisher.PublishCodeIssued(context.Background(), event); err != nil {
		t.Fatalf("PublishCodeIssued returned error: %v", err)
	}

	msg, envelope := receiveEnvelope(t, asyncProducer.input)
	if msg.Topic != "identity.code.issued" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	if id, _ := envelope["event_id"].(string); id == "" {
		t.Fatal("expected generated event id")
	}

	payload := envelope["payload"].(map[string]any)
	if payload["purpose"] != "forgot_password" {
		t.Fatalf("unexpected purpose: %v", payload["purpose"])
	}
	if _, leaked := payload["code"]; leaked {
		t.Fatal("code value must never be published")
	}
}

func TestPublishHonoursContextWhenInputBlocked(t *testing.T) {
	publisher, _ := newTestPublisher(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishPasswordReset(ctx, domain.PasswordResetEvent{UserID: "user-1", ResetAt: time.Now()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTopicName(t *testing.T) {
	p := &Producer{cfg: config.KafkaSettings{TopicPrefix: "identity"}}
	if got := p.TopicName("user.registered"); got != "identity.user.registered" {
		t.Fatalf("unexpected topic %s", got)
	}
	if got := p.TopicName("identity.user.registered"); got != "identity.user.registered" {
		t.Fatalf("prefix applied twice: %s", got)
	}

	bare := &Producer{}
	if got := bare.TopicName("code.issued"); got != "code.issued" {
		t.Fatalf("unexpected topic without prefix %s", got)
	}
}

func TestStubPublisherNeverFails(t *testing.T) {
	stub := NewStubPublisher(zaptest.NewLogger(t))
	ctx := context.Background()

	if err := stub.PublishUserRegistered(ctx, domain.UserRegisteredEvent{UserID: "u", Email: "jane@example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := stub.PublishCodeIssued(ctx, domain.CodeIssuedEvent{UserID: "u", Purpose: domain.CodePurposeRegistration}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
