package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"contacts-api/internal/auth"
	"contacts-api/internal/domain"
	"contacts-api/internal/repository"
)

// fakeUserRepo is an in-memory repository.UserRepository.
type fakeUserRepo struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*domain.User
	failWith error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int64]*domain.User)}
}

func (r *fakeUserRepo) Init(context.Context) error { return nil }

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return 0, r.failWith
	}
	for _, u := range r.users {
		if u.Email == strings.ToLower(user.Email) || u.Username == user.Username {
			return 0, repository.ErrAlreadyExists
		}
	}
	r.nextID++
	user.ID = r.nextID
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	r.users[user.ID] = &clone
	return user.ID, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, u := range r.users {
		if u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *fakeUserRepo) SetVerified(_ context.Context, id int64) error {
	return r.mutate(id, func(u *domain.User) { u.Verified = true })
}

func (r *fakeUserRepo) UpdateRefreshToken(_ context.Context, id int64, token string) error {
	return r.mutate(id, func(u *domain.User) { u.RefreshToken = token })
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id int64, digest string) error {
	return r.mutate(id, func(u *domain.User) { u.PasswordHash = digest })
}

func (r *fakeUserRepo) UpdateAvatar(_ context.Context, id int64, url string) error {
	return r.mutate(id, func(u *domain.User) { u.AvatarURL = url })
}

func (r *fakeUserRepo) mutate(id int64, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// delete removes a user directly, bypassing the repository contract.
func (r *fakeUserRepo) delete(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
}

func (r *fakeUserRepo) setFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWith = err
}

// sentMail captures one dispatched message.
type sentMail struct {
	to       string
	username string
	token    string
}

// fakeSender records dispatched mail on buffered channels.
type fakeSender struct {
	verifications chan sentMail
	resets        chan sentMail
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		verifications: make(chan sentMail, 16),
		resets:        make(chan sentMail, 16),
	}
}

func (s *fakeSender) SendVerification(_ context.Context, to, username, token string) error {
	s.verifications <- sentMail{to: to, username: username, token: token}
	return nil
}

func (s *fakeSender) SendPasswordReset(_ context.Context, to, username, token string) error {
	s.resets <- sentMail{to: to, username: username, token: token}
	return nil
}

// testEnv bundles the service stack over in-memory collaborators.
type testEnv struct {
	repo         *fakeUserRepo
	sender       *fakeSender
	hasher       auth.PasswordHasher
	tokens       *auth.TokenService
	verification *VerificationService
	auth         *AuthService
	dispatched   chan struct{}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithTokens(t, auth.NewTokenService("test-secret", time.Hour, 7*24*time.Hour, 24*time.Hour, time.Hour))
}

func newTestEnvWithTokens(t *testing.T, tokens *auth.TokenService) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(testWriter{t})

	env := &testEnv{
		repo:       newFakeUserRepo(),
		sender:     newFakeSender(),
		hasher:     auth.NewBcryptHasher(),
		tokens:     tokens,
		dispatched: make(chan struct{}, 16),
	}
	env.verification = NewVerificationService(env.repo, env.tokens, env.hasher, env.sender, logger)
	env.verification.dispatched = env.dispatched
	env.auth = NewAuthService(env.repo, env.hasher, env.tokens, env.verification, logger)
	return env
}

// waitDispatch blocks until one background mail dispatch has completed.
func (e *testEnv) waitDispatch(t *testing.T) {
	t.Helper()
	select {
	case <-e.dispatched:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mail dispatch")
	}
}

// register creates a user through the gateway and returns it together with
// the verification token that was mailed.
func (e *testEnv) register(t *testing.T, email, username, password string) (*domain.User, string) {
	t.Helper()

	user, err := e.auth.Register(context.Background(), email, username, password)
	require.NoError(t, err)
	e.waitDispatch(t)

	select {
	case mail := <-e.sender.verifications:
		require.Equal(t, user.Email, mail.to)
		return user, mail.token
	default:
		t.Fatal("no verification mail dispatched")
		return nil, ""
	}
}

// testWriter routes logrus output through the test log.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}
