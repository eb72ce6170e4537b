// Package tokenstore keeps the current access token in durable storage.
//
// The token is opaque here: nothing is validated client-side and only server
// responses decide whether it is still good.
package tokenstore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/kart-storefront/internal/storage"
)

// Store holds the access token.
type Store struct {
	store storage.Store
}

// New returns a token Store persisting into s.
func New(s storage.Store) *Store {
	return &Store{store: s}
}

// Get returns the stored token and whether one is present.
func (s *Store) Get(ctx context.Context) (string, bool, error) {
	data, err := s.store.Get(ctx, storage.KeyAccessToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "get access token")
	}
	token := strings.TrimSpace(string(data))
	return token, token != "", nil
}

// Set stores token. An empty token clears the store.
func (s *Store) Set(ctx context.Context, token string) error {
	if token == "" {
		return s.Clear(ctx)
	}
	if err := s.store.Set(ctx, storage.KeyAccessToken, []byte(token)); err != nil {
		return errors.Wrap(err, "set access token")
	}
	return nil
}

// Clear removes the stored token.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, storage.KeyAccessToken); err != nil {
		return errors.Wrap(err, "clear access token")
	}
	return nil
}

// Token implements apiclient.TokenSource.
func (s *Store) Token(ctx context.Context) (string, error) {
	token, _, err := s.Get(ctx)
	return token, err
}

// Info is what can be read from a JWT access token without verifying it.
type Info struct {
	Subject   string
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the token claims an expiry before now. Tokens
// without an expiry never report expired.
func (i Info) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// Inspect decodes token claims for display. The signature is NOT checked
// and the result must never decide whether a request is made.
func Inspect(token string) (Info, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Info{}, false
	}

	var info Info
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	switch v := claims["user_id"].(type) {
	case string:
		info.UserID = v
	case float64:
		info.UserID = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return info, true
}
