// Package storage defines the durable key/value storage the storefront keeps
// its client-side state in: the cart, the access token and order receipts.
//
// Backends live in subpackages. Writes are whole-value replacements and the
// last writer wins; there is no cross-process locking.
package storage

import (
	"context"

	"github.com/go-faster/errors"
)

// Well-known keys.
const (
	KeyCart        = "cart_items"
	KeyAccessToken = "access_token"
	KeyReceipts    = "order_receipts"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is durable key/value storage.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Namespaced prefixes every key with ns and a colon, so several profiles
// can share one backend. An empty ns returns s unchanged.
func Namespaced(s Store, ns string) Store {
	if ns == "" {
		return s
	}
	return &namespaced{store: s, prefix: ns + ":"}
}

type namespaced struct {
	store  Store
	prefix string
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.store.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.prefix+key)
}
