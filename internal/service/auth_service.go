package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"contacts-api/internal/auth"
	"contacts-api/internal/domain"
	"contacts-api/internal/repository"
)

// TokenPair is the credential set handed out on login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

// AuthService is the gateway the HTTP layer talks to: registration, login,
// token refresh, and authenticated-request resolution. It is stateless per
// request; all mutable state lives in the user store.
type AuthService struct {
	users        repository.UserRepository
	hasher       auth.PasswordHasher
	tokens       *auth.TokenService
	verification *VerificationService
	logger       *logrus.Logger

	// dummyDigest levels the timing of login for unknown emails: the
	// password check always runs against some digest.
	dummyDigest string
}

func NewAuthService(
	users repository.UserRepository,
	hasher auth.PasswordHasher,
	tokens *auth.TokenService,
	verification *VerificationService,
	logger *logrus.Logger,
) *AuthService {
	dummy, err := hasher.Hash("enumeration-defense")
	if err != nil {
		dummy = ""
	}
	return &AuthService{
		users:        users,
		hasher:       hasher,
		tokens:       tokens,
		verification: verification,
		logger:       logger,
		dummyDigest:  dummy,
	}
}

// Register creates an unverified user and triggers the verification mail.
// The registration response never waits on mail delivery.
func (s *AuthService) Register(ctx context.Context, emailAddr, username, password string) (*domain.User, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	username = strings.TrimSpace(username)

	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return nil, errors.New("a valid email is required")
	}
	if username == "" {
		return nil, errors.New("username is required")
	}
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return nil, ErrEmailAlreadyExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr("check email", err)
	}
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, ErrUsernameAlreadyExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr("check username", err)
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     username,
		Email:        emailAddr,
		PasswordHash: digest,
		Role:         domain.RoleUser,
	}

	if _, err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, storeErr("create user", err)
	}

	if err := s.verification.RequestVerification(user); err != nil {
		s.logger.WithError(err).WithField("user", user.ID).Warn("request verification failed")
	}

	return sanitizeUser(user), nil
}

// Login authenticates by email and password. Unknown email and wrong
// password produce the same error; a correct password on an unverified user
// fails with ErrEmailNotVerified and never issues tokens.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (*TokenPair, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if emailAddr == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn a comparison so the unknown-email path costs the
			// same as a mismatch.
			s.hasher.Verify(password, s.dummyDigest)
			return nil, ErrInvalidCredentials
		}
		return nil, storeErr("load user", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.Verified {
		return nil, ErrEmailNotVerified
	}

	return s.issuePair(ctx, user)
}

// Refresh exchanges a valid refresh token for a new token pair. The stored
// row value is the only live refresh token; rotation invalidates the one
// presented.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Validate(refreshToken, auth.PurposeRefresh)
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

	if user.RefreshToken == "" ||
		subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(refreshToken)) != 1 {
		return nil, auth.ErrTokenInvalid
	}

	return s.issuePair(ctx, user)
}

// Logout revokes the presented refresh token. Access tokens stay valid
// until expiry; there is no denylist.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.Validate(refreshToken, auth.PurposeRefresh)
	if err != nil {
		return err
	}
	id, err := claims.UserID()
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return storeErr("load user", err)
	}
	if subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(refreshToken)) != 1 {
		return auth.ErrTokenInvalid
	}

	if err := s.users.UpdateRefreshToken(ctx, user.ID, ""); err != nil {
		return storeErr("revoke refresh token", err)
	}
	return nil
}

// Resolve validates a bearer access token and loads the user it asserts.
// Every protected endpoint calls this before its handler runs.
func (s *AuthService) Resolve(ctx context.Context, accessToken string) (*domain.User, error) {
	claims, err := s.tokens.Validate(accessToken, auth.PurposeAccess)
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
	return sanitizeUser(user), nil
}

// ResendVerification issues a fresh verification token for an unverified
// user. Unknown and already-verified emails return success without sending
// so responses never reveal which addresses are registered.
func (s *AuthService) ResendVerification(ctx context.Context, emailAddr string) error {
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return storeErr("load user", err)
	}
	if user.Verified {
		return nil
	}
	return s.verification.RequestVerification(user)
}

// UpdateAvatar persists the avatar URL handed back by the object store.
func (s *AuthService) UpdateAvatar(ctx context.Context, userID int64, url string) (*domain.User, error) {
	if err := s.users.UpdateAvatar(ctx, userID, url); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeErr("update avatar", err)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr("load user", err)
	}
	return sanitizeUser(user), nil
}

func (s *AuthService) issuePair(ctx context.Context, user *domain.User) (*TokenPair, error) {
	access, err := s.tokens.Issue(user, auth.PurposeAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.Issue(user, auth.PurposeRefresh)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateRefreshToken(ctx, user.ID, refresh); err != nil {
		return nil, storeErr("store refresh token", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokens.TTL(auth.PurposeAccess).Seconds()),
	}, nil
}

// sanitizeUser strips credential material before a user leaves the service
// layer.
func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clone := *user
	clone.PasswordHash = ""
	clone.RefreshToken = ""
	return &clone
}
