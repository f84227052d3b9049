package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mail "github.com/wneessen/go-mail"

	"github.com/arklim/social-identity/internal/core/domain"
)

const implicitTLSPort = 465

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Secure   bool
	Timeout  time.Duration
}

// SMTPTransport delivers messages through an SMTP relay.
type SMTPTransport struct {
	cfg    SMTPConfig
	client *mail.Client
}

// NewSMTPTransport builds a client for cfg. Port 465 or Secure selects implicit TLS,
// anything else upgrades with STARTTLS when the server offers it.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, errors.New("smtp: host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		cfg.From = cfg.Username
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp: from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Secure || cfg.Port == implicitTLSPort {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp: new client: %w", err)
	}

	return &SMTPTransport{cfg: cfg, client: client}, nil
}

// Send dials the relay and sends msg as a multipart text and HTML message.
func (t *SMTPTransport) Send(ctx context.Context, msg domain.Notification) error {
	m, err := t.buildMessage(msg)
	if err != nil {
		return err
	}
	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp: send: %w", err)
	}
	return nil
}

func (t *SMTPTransport) buildMessage(msg domain.Notification) (*mail.Msg, error) {
	m := mail.NewMsg()
	if t.cfg.FromName != "" {
		if err := m.FromFormat(t.cfg.FromName, t.cfg.From); err != nil {
			return nil, fmt.Errorf("smtp: from: %w", err)
		}
	} else if err := m.From(t.cfg.From); err != nil {
		return nil, fmt.Errorf("smtp: from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("smtp: to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}
