package billyfs

import (
	"context"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/storage"
	"github.com/xenking/kart-storefront/internal/storage/storagetest"
)

func TestStore_Memory(t *testing.T) {
	storagetest.Run(t, NewMemory())
}

func TestStore_Dir(t *testing.T) {
	s, err := NewDir(t.TempDir())
	require.NoError(t, err)
	storagetest.Run(t, s)
}

func TestStore_DirSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := NewDir(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, storage.KeyAccessToken, []byte("abc")))

	s2, err := NewDir(dir)
	require.NoError(t, err)
	got, err := s2.Get(ctx, storage.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestStore_KeysCannotEscapeRoot(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	s := New(fs)

	require.NoError(t, s.Set(ctx, "../../etc/passwd", []byte("x")))

	entries, err := fs.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "/")
}

func TestStore_NoTempFilesLeft(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	s := New(fs)

	for range 3 {
		require.NoError(t, s.Set(ctx, storage.KeyCart, []byte("[]")))
	}

	entries, err := fs.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cart_items.json", entries[0].Name())
}
