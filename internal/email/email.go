// Package email delivers account mail (verification and password reset) over
// SMTP.
package email

import "context"

// Sender dispatches account mail. Implementations must be safe for
// concurrent use; callers treat delivery as a side effect and never block a
// registration response on it.
type Sender interface {
	// SendVerification mails the address a link embedding the
	// email-verification token.
	SendVerification(ctx context.Context, to, username, token string) error

	// SendPasswordReset mails the address a link embedding the
	// password-reset token.
	SendPasswordReset(ctx context.Context, to, username, token string) error
}

// NopSender discards all mail. Used when SMTP is not configured and in
// tests.
type NopSender struct{}

func (NopSender) SendVerification(context.Context, string, string, string) error { return nil }

func (NopSender) SendPasswordReset(context.Context, string, string, string) error { return nil }
