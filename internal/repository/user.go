package repository

import (
	"context"
	"errors"

	"contacts-api/internal/domain"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a uniqueness constraint rejects a
	// write.
	ErrAlreadyExists = errors.New("already exists")
)

// UserRepository defines persistence operations for User entities. Email
// lookups are case-insensitive; implementations store emails lowercase.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) (int64, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	SetVerified(ctx context.Context, id int64) error
	UpdateRefreshToken(ctx context.Context, id int64, token string) error
	UpdatePassword(ctx context.Context, id int64, digest string) error
	UpdateAvatar(ctx context.Context, id int64, url string) error
}
