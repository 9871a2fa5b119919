package domain

import "time"

// Role defines the authorization level of a user.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

var roleRank = map[Role]int{
	RoleUser:      1,
	RoleModerator: 2,
	RoleAdmin:     3,
}

// AtLeast reports whether r grants at least the privileges of other.
// Unknown roles never satisfy any requirement.
func (r Role) AtLeast(other Role) bool {
	rr, ok := roleRank[r]
	if !ok {
		return false
	}
	or, ok := roleRank[other]
	if !ok {
		return false
	}
	return rr >= or
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// User represents an account of the contacts API. Email is stored lowercase
// and is unique. PasswordHash is the bcrypt digest, never the plaintext.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Verified     bool
	Role         Role
	AvatarURL    string
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
