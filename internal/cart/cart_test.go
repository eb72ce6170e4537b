package cart

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/storage"
	"github.com/xenking/kart-storefront/internal/storage/billyfs"
)

type failingStore struct {
	storage.Store
	setErr error
}

func (f *failingStore) Set(context.Context, string, []byte) error {
	return f.setErr
}

func newTestProduct(id int64, price string) product.Product {
	return product.Product{
		ID:      id,
		Title:   "Product",
		Price:   decimal.RequireFromString(price),
		Brand:   "Acme",
		InStock: true,
	}
}

func ids(lines []Line) []int64 {
	out := make([]int64, len(lines))
	for i, l := range lines {
		out[i] = l.Product.ID
	}
	return out
}

func TestStore_AddMergesAndKeepsOrder(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, billyfs.NewMemory())

	require.NoError(t, c.Add(ctx, newTestProduct(3, "1"), 1))
	require.NoError(t, c.Add(ctx, newTestProduct(1, "1"), 2))
	require.NoError(t, c.Add(ctx, newTestProduct(3, "1"), 4))

	assert.Equal(t, []int64{3, 1}, ids(c.Lines()))
	l, ok := c.Line(3)
	require.True(t, ok)
	assert.Equal(t, 5, l.Quantity)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 7, c.Count())
}

func TestStore_AddInvalidQuantity(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, billyfs.NewMemory())

	for _, q := range []int{0, -3} {
		err := c.Add(ctx, newTestProduct(1, "1"), q)
		require.ErrorIs(t, err, ErrInvalidQuantity)
	}
	assert.Zero(t, c.Len())
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		id       int64
		quantity int
		wantIDs  []int64
		wantQty  int
	}{
		{name: "set", id: 1, quantity: 9, wantIDs: []int64{1, 2}, wantQty: 9},
		{name: "zero removes", id: 1, quantity: 0, wantIDs: []int64{2}},
		{name: "negative removes", id: 1, quantity: -1, wantIDs: []int64{2}},
		{name: "unknown ignored", id: 42, quantity: 3, wantIDs: []int64{1, 2}, wantQty: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(ctx, billyfs.NewMemory())
			require.NoError(t, c.Add(ctx, newTestProduct(1, "1"), 2))
			require.NoError(t, c.Add(ctx, newTestProduct(2, "1"), 1))

			require.NoError(t, c.Update(ctx, tt.id, tt.quantity))
			assert.Equal(t, tt.wantIDs, ids(c.Lines()))
			if tt.wantQty > 0 {
				l, ok := c.Line(1)
				require.True(t, ok)
				assert.Equal(t, tt.wantQty, l.Quantity)
			}
		})
	}
}

func TestStore_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, billyfs.NewMemory())
	require.NoError(t, c.Add(ctx, newTestProduct(1, "1"), 1))
	require.NoError(t, c.Add(ctx, newTestProduct(2, "1"), 1))

	require.NoError(t, c.Remove(ctx, 1))
	require.NoError(t, c.Remove(ctx, 99))
	assert.Equal(t, []int64{2}, ids(c.Lines()))

	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.Len())
	assert.True(t, c.Total().IsZero())
}

func TestStore_Total(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, billyfs.NewMemory())
	require.NoError(t, c.Add(ctx, newTestProduct(1, "10"), 2))
	require.NoError(t, c.Add(ctx, newTestProduct(2, "5"), 3))

	assert.True(t, decimal.NewFromInt(35).Equal(c.Total()), "got %s", c.Total())

	snap := c.Snapshot()
	assert.Equal(t, 5, snap.Count)
	assert.True(t, snap.Total.Equal(c.Total()))
	assert.Len(t, snap.Lines, 2)
}

func TestStore_TotalKeepsCents(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, billyfs.NewMemory())
	require.NoError(t, c.Add(ctx, newTestProduct(1, "0.10"), 3))

	assert.Equal(t, "0.3", c.Total().String())
}

func TestStore_Refresh(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, billyfs.NewMemory())
	require.NoError(t, c.Add(ctx, newTestProduct(1, "10"), 2))
	require.NoError(t, c.Add(ctx, newTestProduct(2, "5"), 1))

	require.NoError(t, c.Refresh(ctx, newTestProduct(1, "12")))
	require.NoError(t, c.Refresh(ctx, newTestProduct(7, "1")))

	assert.Equal(t, []int64{1, 2}, ids(c.Lines()))
	l, _ := c.Line(1)
	assert.Equal(t, 2, l.Quantity)
	assert.Equal(t, "12", l.Product.Price.String())
}

func TestStore_PersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	s := billyfs.NewMemory()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	p := newTestProduct(5, "19.99")
	p.Category = &product.Category{ID: 2, Name: "Shoes", Slug: "shoes"}
	p.Image = "https://cdn.example.com/5.png"
	p.CreatedAt = created

	c := New(ctx, s)
	require.NoError(t, c.Add(ctx, p, 2))
	require.NoError(t, c.Add(ctx, newTestProduct(1, "3"), 1))

	reloaded := New(ctx, s)
	assert.Equal(t, c.Lines(), reloaded.Lines())
	assert.True(t, c.Total().Equal(reloaded.Total()))
}

func TestStore_CorruptDataStartsEmpty(t *testing.T) {
	ctx := context.Background()

	for _, data := range []string{
		`not json`,
		`{"product":1}`,
		`[{"quantity":1}]`,
		`[{"product":{"id":1,"price":"x"},"quantity":1}]`,
		`[{"product":{"id":1,"price":"1"},"quantity":1}] garbage`,
		`[][]`,
		`[{"product":{"id":1,"price":"1"},"quantity":1}`,
	} {
		t.Run(data, func(t *testing.T) {
			s := billyfs.NewMemory()
			require.NoError(t, s.Set(ctx, storage.KeyCart, []byte(data)))

			c := New(ctx, s)
			assert.Zero(t, c.Len())

			// The cart stays usable after recovery.
			require.NoError(t, c.Add(ctx, newTestProduct(1, "1"), 1))
			assert.Equal(t, 1, New(ctx, s).Len())
		})
	}
}

func TestStore_NormalizesRestoredLines(t *testing.T) {
	ctx := context.Background()
	s := billyfs.NewMemory()
	data := `[
		{"product":{"id":1,"title":"A","price":2.5},"quantity":1},
		{"product":{"id":2,"title":"B","price":"1"},"quantity":0},
		{"product":{"id":1,"title":"A","price":2.5},"quantity":3}
	]`
	require.NoError(t, s.Set(ctx, storage.KeyCart, []byte(data)))

	c := New(ctx, s)
	require.Equal(t, []int64{1}, ids(c.Lines()))
	l, _ := c.Line(1)
	assert.Equal(t, 4, l.Quantity)
	assert.Equal(t, "10", c.Total().String())
	assert.True(t, l.Product.InStock)
}

func TestStore_PersistError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	c := New(ctx, &failingStore{Store: billyfs.NewMemory(), setErr: boom})

	err := c.Add(ctx, newTestProduct(1, "1"), 1)
	require.ErrorIs(t, err, boom)
}

func TestOrderItems(t *testing.T) {
	lines := []Line{
		{Product: newTestProduct(4, "1"), Quantity: 2},
		{Product: newTestProduct(1, "1"), Quantity: 1},
	}
	assert.Equal(t, []order.Item{
		{ProductID: 4, Quantity: 2},
		{ProductID: 1, Quantity: 1},
	}, OrderItems(lines))
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`{}`))
	var de *DeserializationError
	require.ErrorAs(t, err, &de)

	_, err = Decode([]byte(`[{"product":{"id":1,"price":"-1"},"quantity":1}]`))
	require.ErrorAs(t, err, &de)

	_, err = Decode([]byte(`[] {}`))
	require.ErrorAs(t, err, &de)
	assert.ErrorContains(t, err, "trailing data")
}

func TestEncodeDecode_MinimalProduct(t *testing.T) {
	lines := []Line{{Product: product.Product{ID: 1, Price: decimal.NewFromInt(1), InStock: true}, Quantity: 3}}

	got, err := Decode(Encode(lines))
	require.NoError(t, err)
	assert.Equal(t, lines, got)
}

func TestDecode_SurroundingWhitespace(t *testing.T) {
	got, err := Decode([]byte("\n [{\"product\":{\"id\":2,\"price\":\"4\"},\"quantity\":1}] \n"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Product.ID)
}

func TestStore_ReloadAfterAdds(t *testing.T) {
	ctx := context.Background()
	s := billyfs.NewMemory()
	c := New(ctx, s)
	for range 3 {
		require.NoError(t, c.Add(ctx, newTestProduct(1, "1"), 1))
	}

	l, ok := New(ctx, s).Line(1)
	require.True(t, ok)
	assert.Equal(t, 3, l.Quantity)
}

func TestStore_QuantityLimits(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, billyfs.NewMemory())

	require.ErrorIs(t, c.Add(ctx, newTestProduct(1, "1"), math.MaxInt), ErrQuantityTooLarge)
	require.NoError(t, c.Add(ctx, newTestProduct(1, "1"), MaxQuantity))
	require.ErrorIs(t, c.Add(ctx, newTestProduct(1, "1"), 1), ErrQuantityTooLarge)

	l, _ := c.Line(1)
	assert.Equal(t, MaxQuantity, l.Quantity)
	assert.True(t, c.Total().IsPositive())

	require.ErrorIs(t, c.Update(ctx, 1, MaxQuantity+1), ErrQuantityTooLarge)
	l, _ = c.Line(1)
	assert.Equal(t, MaxQuantity, l.Quantity)
}

func TestStore_NormalizeCapsMergedQuantity(t *testing.T) {
	ctx := context.Background()
	s := billyfs.NewMemory()
	lines := []Line{
		{Product: newTestProduct(1, "1"), Quantity: MaxQuantity},
		{Product: newTestProduct(1, "1"), Quantity: MaxQuantity},
	}
	require.NoError(t, s.Set(ctx, storage.KeyCart, Encode(lines)))

	l, ok := New(ctx, s).Line(1)
	require.True(t, ok)
	assert.Equal(t, MaxQuantity, l.Quantity)
}

func TestStore_Settle(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, billyfs.NewMemory())
	require.NoError(t, c.Add(ctx, newTestProduct(1, "1"), 3))
	require.NoError(t, c.Add(ctx, newTestProduct(2, "1"), 1))
	require.NoError(t, c.Add(ctx, newTestProduct(3, "1"), 2))

	require.NoError(t, c.Settle(ctx, []order.Item{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
		{ProductID: 9, Quantity: 1},
	}))

	assert.Equal(t, []int64{1, 3}, ids(c.Lines()))
	l, _ := c.Line(1)
	assert.Equal(t, 1, l.Quantity)
}
