// Package email sends account emails (verification OTPs, password resets)
// over SMTP.
package email

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/paperpilot/paperpilot/internal/config"
)

// Mailer is what the auth handlers depend on; tests substitute a fake.
type Mailer interface {
	SendOTP(ctx context.Context, to, name, otp string) error
	SendPasswordReset(ctx context.Context, to, name, resetURL string) error
}

type SMTPMailer struct {
	client *mail.Client
	from   string
	logger *zap.Logger
}

func NewSMTPMailer(cfg *config.Config, logger *zap.Logger) (*SMTPMailer, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST not set")
	}
	client, err := mail.NewClient(cfg.SMTPHost,
		mail.WithPort(cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.SMTPUser),
		mail.WithPassword(cfg.SMTPPassword),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: cfg.MailFrom, logger: logger}, nil
}

var _ Mailer = (*SMTPMailer)(nil)

func (m *SMTPMailer) SendOTP(ctx context.Context, to, name, otp string) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nYour Paper Pilot verification code is %s. It expires in 5 minutes.\n\nIf you didn't sign up, ignore this email.\n",
		name, otp)
	return m.send(ctx, to, "Verify your Paper Pilot account", body)
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, name, resetURL string) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nReset your Paper Pilot password here: %s\n\nThe link expires in 10 minutes. If you didn't request this, ignore this email.\n",
		name, resetURL)
	return m.send(ctx, to, "Reset your Paper Pilot password", body)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	m.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
