// Package storagetest runs the behavioural checks every storage.Store
// backend must pass.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/storage"
)

// Run exercises s. The store must start empty.
func Run(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("SetGet", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, storage.KeyCart, []byte(`[{"quantity":1}]`)))

		got, err := s.Get(ctx, storage.KeyCart)
		require.NoError(t, err)
		assert.Equal(t, `[{"quantity":1}]`, string(got))
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, storage.KeyAccessToken, []byte("first")))
		require.NoError(t, s.Set(ctx, storage.KeyAccessToken, []byte("second")))

		got, err := s.Get(ctx, storage.KeyAccessToken)
		require.NoError(t, err)
		assert.Equal(t, "second", string(got))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "gone", []byte("x")))
		require.NoError(t, s.Delete(ctx, "gone"))

		_, err := s.Get(ctx, "gone")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "never-set"))
	})

	t.Run("Namespaced", func(t *testing.T) {
		a := storage.Namespaced(s, "alice")
		b := storage.Namespaced(s, "bob")

		require.NoError(t, a.Set(ctx, storage.KeyCart, []byte("a")))
		require.NoError(t, b.Set(ctx, storage.KeyCart, []byte("b")))

		got, err := a.Get(ctx, storage.KeyCart)
		require.NoError(t, err)
		assert.Equal(t, "a", string(got))

		got, err = b.Get(ctx, storage.KeyCart)
		require.NoError(t, err)
		assert.Equal(t, "b", string(got))
	})
}
