// Package mail sends HTML email over SMTP.
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/moekrh-design/kpi-team-system/internal/config"
)

var (
	// ErrDisabled is returned by Send when mail is turned off in config.
	ErrDisabled = errors.New("mail disabled")
	// ErrNoRecipient is returned when the recipient address is empty.
	ErrNoRecipient = errors.New("no recipient")
)

// Mailer sends one HTML message.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPMailer is a Mailer backed by an SMTP server.
type SMTPMailer struct {
	cfg  config.MailConfig
	send func(*gomail.Message) error
}

// Option configures an SMTPMailer.
type Option func(*SMTPMailer)

// WithSender routes messages through s instead of dialing the server.
func WithSender(s gomail.Sender) Option {
	return func(m *SMTPMailer) {
		m.send = func(msg *gomail.Message) error { return gomail.Send(s, msg) }
	}
}

// NewSMTPMailer creates a mailer from cfg.
func NewSMTPMailer(cfg config.MailConfig, opts ...Option) *SMTPMailer {
	m := &SMTPMailer{cfg: cfg}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.SSL
	m.send = func(msg *gomail.Message) error { return d.DialAndSend(msg) }
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enabled reports whether Send will attempt delivery.
func (m *SMTPMailer) Enabled() bool {
	return m.cfg.Enabled
}

// From returns the From header value, `"Name" <address>` when a name is set.
func (m *SMTPMailer) From() string {
	addr := m.cfg.Sender()
	if m.cfg.FromName == "" {
		return addr
	}
	return gomail.NewMessage().FormatAddress(addr, m.cfg.FromName)
}

// Send delivers an HTML email to a single recipient.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.From())
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}
