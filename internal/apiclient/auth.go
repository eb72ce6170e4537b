package apiclient

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-storefront/internal/domain/auth"
)

var _ auth.Authenticator = (*Client)(nil)

type credentialsJSON struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges credentials for a JWT pair.
func (c *Client) Login(ctx context.Context, username, password string) (auth.Tokens, error) {
	var tokens auth.Tokens
	req := Request{
		Method: http.MethodPost,
		Path:   "/auth/jwt/create/",
		Body:   credentialsJSON{Username: username, Password: password},
	}
	if err := c.Do(ctx, req, &tokens); err != nil {
		return auth.Tokens{}, errors.Wrap(err, "login")
	}
	if tokens.Access == "" {
		return auth.Tokens{}, errors.New("login: response has no access token")
	}
	return tokens, nil
}

// CurrentUser resolves the identity behind the stored token.
func (c *Client) CurrentUser(ctx context.Context) (*auth.User, error) {
	var u auth.User
	if err := c.Do(ctx, Request{Path: "/api/me/"}, &u); err != nil {
		return nil, errors.Wrap(err, "get current user")
	}
	return &u, nil
}
