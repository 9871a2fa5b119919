package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"contacts-api/internal/domain"
)

// Purpose tags a token with the single operation it is good for.
type Purpose string

const (
	PurposeAccess        Purpose = "access"
	PurposeRefresh       Purpose = "refresh"
	PurposeEmailVerify   Purpose = "email-verify"
	PurposePasswordReset Purpose = "password-reset"
)

var (
	// ErrTokenInvalid indicates a bad signature, malformed structure or a
	// purpose mismatch. Callers reject such tokens outright.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired indicates a well-signed token past its expiry.
	// Callers may offer a resend for verification tokens.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the payload embedded in every signed token.
type Claims struct {
	jwt.RegisteredClaims
	Email   string      `json:"email,omitempty"`
	Role    domain.Role `json:"role,omitempty"`
	Purpose Purpose     `json:"purpose"`
	// Digest carries the pre-hashed replacement password inside a
	// password-reset token. Never a plaintext password.
	Digest string `json:"digest,omitempty"`
}

// UserID returns the subject as a user identifier.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrTokenInvalid
	}
	return id, nil
}

// TokenService issues and validates HS256-signed, time-bounded tokens.
// It is stateless and safe for concurrent use; the signing secret and the
// per-purpose lifetimes are fixed at construction.
type TokenService struct {
	secret []byte
	ttls   map[Purpose]time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, accessTTL, refreshTTL, verifyTTL, resetTTL time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttls: map[Purpose]time.Duration{
			PurposeAccess:        accessTTL,
			PurposeRefresh:       refreshTTL,
			PurposeEmailVerify:   verifyTTL,
			PurposePasswordReset: resetTTL,
		},
		now: time.Now,
	}
}

// TTL returns the configured lifetime for the given purpose.
func (s *TokenService) TTL(purpose Purpose) time.Duration {
	return s.ttls[purpose]
}

// Issue produces a signed token for the user scoped to the given purpose.
func (s *TokenService) Issue(user *domain.User, purpose Purpose) (string, error) {
	return s.sign(Claims{
		Email:   user.Email,
		Role:    user.Role,
		Purpose: purpose,
	}, user.ID, s.ttls[purpose])
}

// IssuePasswordReset produces a password-reset token carrying the digest of
// the replacement password.
func (s *TokenService) IssuePasswordReset(user *domain.User, digest string) (string, error) {
	return s.sign(Claims{
		Email:   user.Email,
		Purpose: PurposePasswordReset,
		Digest:  digest,
	}, user.ID, s.ttls[PurposePasswordReset])
}

func (s *TokenService) sign(claims Claims, subject int64, ttl time.Duration) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(subject, 10),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate verifies signature and expiry and checks that the token was
// issued for the expected purpose. It returns ErrTokenExpired for a
// well-signed expired token and ErrTokenInvalid for everything else.
func (s *TokenService) Validate(token string, purpose Purpose) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid || claims.Purpose != purpose {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
