package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contacts-api/internal/auth"
	"contacts-api/internal/domain"
)

func TestRegister_CreatesUnverifiedUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	user, token := env.register(t, "A@X.com", "alice", "password-1")

	assert.Equal(t, "a@x.com", user.Email, "email is stored lowercase")
	assert.Equal(t, "alice", user.Username)
	assert.False(t, user.Verified)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.Empty(t, user.PasswordHash, "returned user must not expose the digest")
	assert.NotEmpty(t, token)

	stored, err := env.repo.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, env.hasher.Verify("password-1", stored.PasswordHash))
	assert.NotEqual(t, "password-1", stored.PasswordHash)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.register(t, "a@x.com", "alice", "password-1")

	_, err := env.auth.Register(context.Background(), "a@x.com", "alice2", "password-2")
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)

	// The conflicting attempt must not issue a new verification token.
	assert.Empty(t, env.sender.verifications)

	// And the existing user is untouched.
	stored, err := env.repo.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)
	assert.True(t, env.hasher.Verify("password-1", stored.PasswordHash))
}

func TestRegister_DuplicateUsername(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.register(t, "a@x.com", "alice", "password-1")

	_, err := env.auth.Register(context.Background(), "b@x.com", "alice", "password-2")
	assert.ErrorIs(t, err, ErrUsernameAlreadyExists)
}

func TestRegister_Validation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	cases := []struct {
		name     string
		email    string
		username string
		password string
	}{
		{"empty email", "", "alice", "password-1"},
		{"email without at", "nonsense", "alice", "password-1"},
		{"empty username", "a@x.com", "", "password-1"},
		{"short password", "a@x.com", "alice", "short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.auth.Register(context.Background(), tc.email, tc.username, tc.password)
			assert.Error(t, err)
		})
	}
}

func TestLogin_UnverifiedUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.register(t, "a@x.com", "alice", "password-1")

	pair, err := env.auth.Login(context.Background(), "a@x.com", "password-1")
	assert.ErrorIs(t, err, ErrEmailNotVerified)
	assert.Nil(t, pair, "no token may be issued for an unverified user")
}

func TestLogin_UniformInvalidCredentials(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.register(t, "a@x.com", "alice", "password-1")

	_, errWrong := env.auth.Login(context.Background(), "a@x.com", "wrong")
	_, errUnknown := env.auth.Login(context.Background(), "nonexistent@x.com", "anything")

	assert.ErrorIs(t, errWrong, ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.Equal(t, errWrong, errUnknown, "unknown email and wrong password must be indistinguishable")
}

func TestLogin_SuccessIssuesPair(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	user, _ := env.register(t, "a@x.com", "alice", "password-1")
	require.NoError(t, env.repo.SetVerified(context.Background(), user.ID))

	pair, err := env.auth.Login(context.Background(), "a@x.com", "password-1")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	stored, err := env.repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, pair.RefreshToken, stored.RefreshToken)
}

func TestResolve(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	user, _ := env.register(t, "a@x.com", "alice", "password-1")
	require.NoError(t, env.repo.SetVerified(context.Background(), user.ID))

	pair, err := env.auth.Login(context.Background(), "a@x.com", "password-1")
	require.NoError(t, err)

	resolved, err := env.auth.Resolve(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
	assert.Equal(t, "a@x.com", resolved.Email)
	assert.Empty(t, resolved.PasswordHash)
	assert.Empty(t, resolved.RefreshToken)
}

func TestResolve_RejectsNonAccessTokens(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, verifyToken := env.register(t, "a@x.com", "alice", "password-1")

	_, err := env.auth.Resolve(context.Background(), verifyToken)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid, "a verification token must not authorize requests")
}

func TestRefresh_RotatesToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	user, _ := env.register(t, "a@x.com", "alice", "password-1")
	require.NoError(t, env.repo.SetVerified(context.Background(), user.ID))

	first, err := env.auth.Login(context.Background(), "a@x.com", "password-1")
	require.NoError(t, err)

	second, err := env.auth.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The rotated-out token is no longer accepted.
	_, err = env.auth.Refresh(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)

	// The current one still is.
	_, err = env.auth.Refresh(context.Background(), second.RefreshToken)
	assert.NoError(t, err)
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	user, _ := env.register(t, "a@x.com", "alice", "password-1")
	require.NoError(t, env.repo.SetVerified(context.Background(), user.ID))

	pair, err := env.auth.Login(context.Background(), "a@x.com", "password-1")
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(context.Background(), pair.RefreshToken))

	_, err = env.auth.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestResendVerification_EnumerationSafe(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	user, _ := env.register(t, "a@x.com", "alice", "password-1")

	// Unknown address: success, nothing sent.
	require.NoError(t, env.auth.ResendVerification(context.Background(), "nobody@x.com"))
	assert.Empty(t, env.sender.verifications)

	// Unverified user: a fresh token goes out.
	require.NoError(t, env.auth.ResendVerification(context.Background(), "a@x.com"))
	env.waitDispatch(t)
	assert.Len(t, env.sender.verifications, 1)
	<-env.sender.verifications

	// Verified user: success, nothing sent.
	require.NoError(t, env.repo.SetVerified(context.Background(), user.ID))
	require.NoError(t, env.auth.ResendVerification(context.Background(), "a@x.com"))
	assert.Empty(t, env.sender.verifications)
}

func TestLogin_StoreTimeoutIsUnavailable(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.repo.setFailure(context.DeadlineExceeded)

	_, err := env.auth.Login(context.Background(), "a@x.com", "password-1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidCredentials, "an outage must not masquerade as bad credentials")
}

func TestUpdateAvatar(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	user, _ := env.register(t, "a@x.com", "alice", "password-1")

	updated, err := env.auth.UpdateAvatar(context.Background(), user.ID, "https://cdn.example.com/avatars/1.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/avatars/1.png", updated.AvatarURL)

	_, err = env.auth.UpdateAvatar(context.Background(), 9999, "url")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// TestAuthFlow covers the full lifecycle: register, login rejected until
// confirmation, confirm, login, resolve.
func TestAuthFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	user, verifyToken := env.register(t, "a@x.com", "alice", "pw1-long-enough")
	assert.False(t, user.Verified)

	_, err := env.auth.Login(context.Background(), "a@x.com", "pw1-long-enough")
	require.ErrorIs(t, err, ErrEmailNotVerified)

	confirmed, err := env.verification.Confirm(context.Background(), verifyToken)
	require.NoError(t, err)
	assert.True(t, confirmed.Verified)

	pair, err := env.auth.Login(context.Background(), "a@x.com", "pw1-long-enough")
	require.NoError(t, err)

	resolved, err := env.auth.Resolve(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", resolved.Email)
}
