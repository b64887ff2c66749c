// Package directory abstracts the identity backend the sweep runs against.
// The backend owns user state; the sweep only needs enumeration, last-login
// lookup, deactivation and the identity of the account it runs as.
package directory

import (
	"context"
	"time"
)

type User struct {
	Name        string `json:"name"`
	DisplayName string `json:"display-name,omitempty"`
	Email       string `json:"email,omitempty"`
	Active      bool   `json:"active"`
}

type Directory interface {
	// ListActiveUsers returns a snapshot of currently enabled accounts.
	// Order carries no meaning.
	ListActiveUsers(ctx context.Context) ([]User, error)

	// LastLogin returns the most recent successful authentication for a
	// user. ok is false when the backend has no record for that user.
	LastLogin(ctx context.Context, username string) (t time.Time, ok bool, err error)

	// DeactivateUser disables an account without deleting it.
	DeactivateUser(ctx context.Context, username string) error

	// CurrentUsername identifies the account the credentials run as; that
	// account is protected from deactivation.
	CurrentUsername(ctx context.Context) (string, error)
}
