package auth

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrAuthRequired is returned when an operation needs a signed-in user,
	// either because the session is anonymous or the API answered 401.
	ErrAuthRequired = errors.New("authentication required")
	// ErrForbidden is returned when the signed-in user lacks the privilege,
	// typically a 403 from the API.
	ErrForbidden = errors.New("insufficient privilege")
)

// User is the identity resolved from the current access token.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsStaff  bool   `json:"is_staff"`
}

// Tokens is the pair returned by the token endpoint. Only Access is used;
// Refresh is kept for display and is never exchanged.
type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Authenticator exchanges credentials for tokens and resolves identities.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (Tokens, error)
	CurrentUser(ctx context.Context) (*User, error)
}
