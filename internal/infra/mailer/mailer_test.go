package mailer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/social-identity/internal/core/domain"
	"github.com/arklim/social-identity/internal/core/port"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (r *recordingTransport) Send(_ context.Context, msg domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestCodeMailerRendersPurposeSpecificMessage(t *testing.T) {
	now := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	transport := &recordingTransport{}
	m, err := NewCodeMailer(transport, zap.NewNop(), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewCodeMailer: %v", err)
	}

	err = m.SendCode(context.Background(), port.CodeNotification{
		Email:     "jane@example.com",
		FullName:  "Jane <Doe>",
		Code:      "042917",
		Purpose:   domain.CodePurposeForgotPassword,
		ExpiresAt: now.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("SendCode returned error: %v", err)
	}

	if len(transport.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(transport.sent))
	}
	msg := transport.sent[0]
	if msg.To != "jane@example.com" || msg.Subject != "Reset your password" {
		t.Fatalf("unexpected envelope %+v", msg)
	}
	for _, body := range []string{msg.Text, msg.HTML} {
		if !strings.Contains(body, "042917") || !strings.Contains(body, "10 minutes") {
			t.Fatalf("body missing code or expiry: %q", body)
		}
	}
	if !strings.Contains(msg.HTML, "Jane &lt;Doe&gt;") {
		t.Fatalf("expected html-escaped name, got %q", msg.HTML)
	}
	if !strings.Contains(msg.Text, "Jane <Doe>") {
		t.Fatalf("expected raw name in text body, got %q", msg.Text)
	}
}

func TestCodeMailerRegistrationSubject(t *testing.T) {
	msg, err := renderCode("a@example.com", "", "111111", domain.CodePurposeRegistration, 10)
	if err != nil {
		t.Fatalf("renderCode: %v", err)
	}
	if msg.Subject != "Verify your email address" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.HasPrefix(msg.Text, "Hi there,") {
		t.Fatalf("expected fallback greeting, got %q", msg.Text)
	}
}

func TestCodeMailerSurfacesTransportFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	transport := &recordingTransport{err: errors.New("connection refused")}
	m, err := NewCodeMailer(transport, zap.New(core))
	if err != nil {
		t.Fatalf("NewCodeMailer: %v", err)
	}

	err = m.SendCode(context.Background(), port.CodeNotification{
		Email:     "jane@example.com",
		Code:      "123456",
		Purpose:   domain.CodePurposeRegistration,
		ExpiresAt: time.Now().Add(10 * time.Minute),
	})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected transport error, got %v", err)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected one warning, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["email"]; got != "jan***@example.com" {
		t.Fatalf("expected masked email in log, got %v", got)
	}
}

func TestCodeMailerRejectsUnknownPurpose(t *testing.T) {
	m, _ := NewCodeMailer(&recordingTransport{}, nil)
	err := m.SendCode(context.Background(), port.CodeNotification{
		Email:   "jane@example.com",
		Code:    "123456",
		Purpose: domain.CodePurpose("login"),
	})
	if err == nil {
		t.Fatal("expected error for unknown purpose")
	}
}

func TestNewSMTPTransportValidatesConfig(t *testing.T) {
	if _, err := NewSMTPTransport(SMTPConfig{From: "no-reply@example.com"}); err == nil {
		t.Fatal("expected error without host")
	}
	if _, err := NewSMTPTransport(SMTPConfig{Host: "smtp.example.com"}); err == nil {
		t.Fatal("expected error without from address")
	}
}

func TestSMTPTransportBuildsMultipartMessage(t *testing.T) {
	transport, err := NewSMTPTransport(SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "mailer",
		Password: "secret",
		From:     "no-reply@example.com",
		FromName: "Social",
	})
	if err != nil {
		t.Fatalf("NewSMTPTransport: %v", err)
	}

	msg, err := transport.buildMessage(domain.Notification{
		To:      "jane@example.com",
		Subject: "Verify your email address",
		Text:    "code 123456",
		HTML:    "<p>123456</p>",
	})
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}

	if to := msg.GetToString(); len(to) != 1 || !strings.Contains(to[0], "jane@example.com") {
		t.Fatalf("unexpected recipients %v", to)
	}
	if from := msg.GetFromString(); len(from) != 1 || !strings.Contains(from[0], "Social") {
		t.Fatalf("unexpected from %v", from)
	}
	if subject := msg.GetGenHeader(mail.HeaderSubject); len(subject) != 1 || subject[0] != "Verify your email address" {
		t.Fatalf("unexpected subject %v", subject)
	}
	if parts := msg.GetParts(); len(parts) != 2 {
		t.Fatalf("expected text and html parts, got %d", len(parts))
	}
}

func TestSMTPTransportRejectsBadRecipient(t *testing.T) {
	transport, err := NewSMTPTransport(SMTPConfig{Host: "smtp.example.com", From: "no-reply@example.com"})
	if err != nil {
		t.Fatalf("NewSMTPTransport: %v", err)
	}
	if _, err := transport.buildMessage(domain.Notification{To: "not an address"}); err == nil {
		t.Fatal("expected invalid recipient error")
	}
}

func TestLogTransportLogsMaskedRecipient(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	transport := NewLogTransport(zap.New(core))

	if err := transport.Send(context.Background(), domain.Notification{To: "jane@example.com", Subject: "s", Text: "123456"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one info entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["to"] != "jan***@example.com" {
		t.Fatalf("expected masked recipient, got %v", entries[0].ContextMap())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := transport.Send(ctx, domain.Notification{To: "jane@example.com"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
