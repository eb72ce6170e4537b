package receipt

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/storage"
	"github.com/xenking/kart-storefront/internal/storage/billyfs"
)

func TestKVLog_NewestFirst(t *testing.T) {
	ctx := context.Background()
	log := NewKVLog(billyfs.NewMemory(), 0)

	require.NoError(t, log.Append(ctx, Receipt{OrderID: "1", Total: decimal.NewFromInt(10), Items: 1}))
	require.NoError(t, log.Append(ctx, Receipt{OrderID: "2", Total: decimal.NewFromInt(20), Items: 2}))

	got, err := log.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].OrderID)
	assert.Equal(t, "1", got[1].OrderID)
	assert.True(t, decimal.NewFromInt(20).Equal(got[0].Total))
}

func TestKVLog_Capped(t *testing.T) {
	ctx := context.Background()
	log := NewKVLog(billyfs.NewMemory(), 3)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, log.Append(ctx, Receipt{OrderID: id, PlacedAt: time.Now()}))
	}

	got, err := log.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "e", got[0].OrderID)
	assert.Equal(t, "c", got[2].OrderID)
}

func TestKVLog_EmptyAndCorrupt(t *testing.T) {
	ctx := context.Background()
	store := billyfs.NewMemory()
	log := NewKVLog(store, 0)

	got, err := log.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.Set(ctx, storage.KeyReceipts, []byte("{not json")))
	got, err = log.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, log.Append(ctx, Receipt{OrderID: "7"}))
	got, err = log.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
