package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account of the HTTP surface. Chat users coming from Telegram
// are identified by their platform id and have no row here.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// NewUser returns an account with a fresh id. passwordHash must already be
// a bcrypt hash.
func NewUser(username, email, passwordHash string, now time.Time) *User {
	now = now.UTC()
	return &User{
		ID:           uuid.New(),
		Username:     strings.TrimSpace(username),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Owner is the user id expenses of this account are recorded under. It is
// also the subject of the account's tokens.
func (u *User) Owner() string {
	return u.ID.String()
}
