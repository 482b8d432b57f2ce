package auth

import (
	"fmt"
	"time"

	"github.com/preventa/preventa/internal/platform/httpx"
)

// User represents an account that owns budgets.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", httpx.ErrUnauthorized)
	// ErrEmailTaken is returned on registration with an existing email.
	ErrEmailTaken = fmt.Errorf("email already registered: %w", httpx.ErrConflict)
	// ErrUserNotFound is returned for lookups of unknown accounts.
	ErrUserNotFound = fmt.Errorf("user %w", httpx.ErrNotFound)
)
