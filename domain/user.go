package domain

import (
	"context"
	"time"
)

// UserStatus defines the possible statuses of a user account.
type UserStatus string

const (
	UserStatusActive   UserStatus = "ACTIVE"
	UserStatusInactive UserStatus = "INACTIVE"
)

// User is owned by the identity store and only read here.
type User struct {
	ID           string     `bson:"_id,omitempty"`
	Email        string     `bson:"email"`
	Username     string     `bson:"username"`
	Roles        []string   `bson:"roles,omitempty"`
	Status       UserStatus `bson:"status"`
	PasswordHash string     `bson:"password_hash"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// PublicUser is the projection returned to callers. It never carries the
// credential hash.
//
//nolint:tagliatelle
type PublicUser struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

func (u *User) Public() PublicUser {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}

	return PublicUser{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Roles:    roles,
	}
}

// UserRepository reads users from the identity store.
type UserRepository interface {
	// FindByID returns ErrUserNotFound for unknown ids.
	FindByID(ctx context.Context, id string) (*User, error)
	// ValidateCredentials resolves identifier as email or username and checks
	// password against the stored hash. Unknown users and wrong passwords both
	// return ErrInvalidCredentials.
	ValidateCredentials(ctx context.Context, identifier, password string) (*User, error)
}
