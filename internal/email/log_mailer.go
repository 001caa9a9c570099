package email

import (
	"context"

	"go.uber.org/zap"
)

// LogMailer is the development fallback when no SMTP server is configured:
// it logs what would have been sent instead of sending it.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

var _ Mailer = (*LogMailer)(nil)

func (m *LogMailer) SendOTP(ctx context.Context, to, name, otp string) error {
	m.logger.Info("would send verification code",
		zap.String("to", to), zap.String("otp", otp))
	return nil
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, to, name, resetURL string) error {
	m.logger.Info("would send password reset",
		zap.String("to", to), zap.String("reset_url", resetURL))
	return nil
}
