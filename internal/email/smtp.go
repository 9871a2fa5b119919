package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// Config holds SMTP connection settings and the public base URL used to
// build the links embedded in mail.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// BaseURL is the externally reachable root of the API, e.g.
	// "https://contacts.example.com".
	BaseURL string
}

func (c Config) validate() error {
	if c.Host == "" {
		return fmt.Errorf("smtp host is required")
	}
	if c.Port <= 0 {
		return fmt.Errorf("smtp port is required")
	}
	if c.From == "" {
		return fmt.Errorf("mail from address is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("mail base url is required")
	}
	return nil
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	cfg    Config
	dialer *gomail.Dialer
}

func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid mail config: %w", err)
	}
	return &SMTPSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}, nil
}

func (s *SMTPSender) SendVerification(ctx context.Context, to, username, token string) error {
	url := fmt.Sprintf("%s/api/auth/confirm/%s", s.cfg.BaseURL, token)
	body, err := renderTemplate(verifyTemplate, templateData{Username: username, ActionURL: url})
	if err != nil {
		return err
	}
	return s.send(ctx, to, "Confirm your email", body)
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, to, username, token string) error {
	url := fmt.Sprintf("%s/api/auth/password-reset/confirm/%s", s.cfg.BaseURL, token)
	body, err := renderTemplate(resetTemplate, templateData{Username: username, ActionURL: url})
	if err != nil {
		return err
	}
	return s.send(ctx, to, "Reset your password", body)
}

func (s *SMTPSender) send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.cfg.From, s.cfg.FromName)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
