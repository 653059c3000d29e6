package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/smallbiznis/kasira/internal/config"
	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("email provider not configured")

// Message is a plain-text mail with an optional PDF attachment.
type Message struct {
	To         string
	Subject    string
	Body       string
	Attachment []byte
	Filename   string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// New returns the SMTP provider when SMTP settings are present, otherwise a
// logging no-op so invoice/reminder flows keep working in dev environments.
func New(cfg config.Config, log *zap.Logger) Provider {
	if strings.TrimSpace(cfg.Email.SMTPHost) == "" {
		return &noopProvider{log: log.Named("email.noop")}
	}
	return &smtpProvider{cfg: cfg.Email, log: log.Named("email.smtp")}
}

type smtpProvider struct {
	cfg config.EmailConfig
	log *zap.Logger
}

func (p *smtpProvider) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return fmt.Errorf("empty recipient")
	}

	addr := fmt.Sprintf("%s:%d", p.cfg.SMTPHost, p.cfg.SMTPPort)
	var auth smtp.Auth
	if p.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", p.cfg.SMTPUsername, p.cfg.SMTPPassword, p.cfg.SMTPHost)
	}

	payload := buildPayload(p.cfg.SMTPFrom, to, msg)
	if err := smtp.SendMail(addr, auth, p.cfg.SMTPFrom, []string{to}, payload); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	p.log.Info("email sent", zap.String("to", to), zap.String("subject", msg.Subject))
	return nil
}

type noopProvider struct {
	log *zap.Logger
}

func (p *noopProvider) Send(ctx context.Context, msg Message) error {
	_ = ctx
	p.log.Info("email suppressed (smtp not configured)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
