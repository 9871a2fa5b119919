package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"contacts-api/internal/auth"
	"contacts-api/internal/domain"
	"contacts-api/internal/email"
	"contacts-api/internal/repository"
)

// dispatchTimeout bounds a single background mail delivery.
const dispatchTimeout = 30 * time.Second

// VerificationService drives the unverified-to-verified user lifecycle and
// the password-reset flow. Mail dispatch is fire-and-forget: a delivery
// failure is logged, never surfaced to the request that triggered it.
type VerificationService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	hasher auth.PasswordHasher
	sender email.Sender
	logger *logrus.Logger

	// dispatched, when non-nil, receives a signal after every background
	// send attempt completes. Set by tests only.
	dispatched chan struct{}
}

func NewVerificationService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	hasher auth.PasswordHasher,
	sender email.Sender,
	logger *logrus.Logger,
) *VerificationService {
	return &VerificationService{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		sender: sender,
		logger: logger,
	}
}

// RequestVerification issues an email-verification token for the user and
// dispatches the confirmation mail in the background. Calling it again
// before confirmation simply issues another valid token; confirmation is
// idempotent so older tokens stay harmless.
func (s *VerificationService) RequestVerification(user *domain.User) error {
	token, err := s.tokens.Issue(user, auth.PurposeEmailVerify)
	if err != nil {
		return fmt.Errorf("issue verification token: %w", err)
	}

	s.dispatch(func(ctx context.Context) error {
		return s.sender.SendVerification(ctx, user.Email, user.Username, token)
	}, user.Email)
	return nil
}

// Confirm validates an email-verification token and transitions the
// referenced user to verified. Confirming an already-verified user succeeds
// without mutation.
func (s *VerificationService) Confirm(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.Validate(token, auth.PurposeEmailVerify)
	if err != nil {
		return nil, err
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeErr("load user", err)
	}

	if user.Verified {
		return user, nil
	}

	if err := s.users.SetVerified(ctx, user.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeErr("mark user verified", err)
	}
	user.Verified = true
	return user, nil
}

// RequestPasswordReset hashes the replacement password, embeds the digest in
// a reset token and mails the confirmation link. Unknown and unverified
// emails return success without sending so responses never reveal which
// addresses are registered.
func (s *VerificationService) RequestPasswordReset(ctx context.Context, emailAddr, newPassword string) error {
	digest, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return storeErr("load user", err)
	}
	if !user.Verified {
		return nil
	}

	token, err := s.tokens.IssuePasswordReset(user, digest)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}

	s.dispatch(func(ctx context.Context) error {
		return s.sender.SendPasswordReset(ctx, user.Email, user.Username, token)
	}, user.Email)
	return nil
}

// ConfirmPasswordReset applies the digest carried by a valid reset token and
// revokes the user's refresh token so existing sessions cannot outlive the
// old password.
func (s *VerificationService) ConfirmPasswordReset(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token, auth.PurposePasswordReset)
	if err != nil {
		return err
	}
	if claims.Digest == "" {
		return auth.ErrTokenInvalid
	}
	id, err := claims.UserID()
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, id, claims.Digest); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return storeErr("update password", err)
	}
	if err := s.users.UpdateRefreshToken(ctx, id, ""); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return storeErr("revoke refresh token", err)
	}
	return nil
}

// dispatch runs a mail delivery in the background with its own deadline.
func (s *VerificationService) dispatch(send func(context.Context) error, to string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			s.logger.WithError(err).WithField("to", to).Warn("mail dispatch failed")
		}
		if s.dispatched != nil {
			s.dispatched <- struct{}{}
		}
	}()
}
