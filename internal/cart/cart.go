// Package cart holds the shopping cart: an ordered list of product lines
// with at most one line per product, persisted after every change.
package cart

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/storage"
)

// MaxQuantity is the largest quantity a line may hold, the range of the
// shop API's positive integer column.
const MaxQuantity = math.MaxInt32

var (
	// ErrInvalidQuantity is returned by Add when quantity is below 1.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrQuantityTooLarge is returned when a line would exceed MaxQuantity.
	ErrQuantityTooLarge = errors.New("quantity is too large")
)

// Line is a product snapshot and how many of it are in the cart.
type Line struct {
	Product  product.Product
	Quantity int
}

// Subtotal is price × quantity for the line.
func (l Line) Subtotal() decimal.Decimal {
	return l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report recovered load failures.
func WithLogger(lg *zap.Logger) Option {
	return func(s *Store) {
		s.lg = lg
	}
}

// Store is the cart. All methods are safe for concurrent use; each mutation
// reads the latest lines and writes the new lines in one step.
type Store struct {
	mu    sync.Mutex
	lines []Line
	store storage.Store
	lg    *zap.Logger
}

// New restores the cart persisted in s. Missing or corrupt data yields an
// empty cart; New never fails.
func New(ctx context.Context, s storage.Store, opts ...Option) *Store {
	c := &Store{store: s, lg: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	c.lines = c.load(ctx)
	return c
}

func (c *Store) load(ctx context.Context) []Line {
	data, err := c.store.Get(ctx, storage.KeyCart)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.lg.Warn("Cart storage unavailable, starting empty", zap.Error(err))
		}
		return nil
	}

	lines, err := Decode(data)
	if err != nil {
		c.lg.Warn("Discarding corrupt cart", zap.Error(err))
		return nil
	}
	return normalize(lines)
}

// normalize enforces the line invariants on restored data: quantities are
// positive and product ids unique (duplicates are merged into the first).
func normalize(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	index := make(map[int64]int, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			continue
		}
		l.Quantity = min(l.Quantity, MaxQuantity)
		if i, ok := index[l.Product.ID]; ok {
			out[i].Quantity = min(out[i].Quantity+l.Quantity, MaxQuantity)
			continue
		}
		index[l.Product.ID] = len(out)
		out = append(out, l)
	}
	return out
}

// mutate applies fn to a copy of the current lines. When fn reports a change
// the result becomes the current state and is persisted. An error from fn
// leaves the cart as it was.
func (c *Store) mutate(ctx context.Context, fn func(lines []Line) ([]Line, bool, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, changed, err := fn(slices.Clone(c.lines))
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	c.lines = next

	if err := c.store.Set(ctx, storage.KeyCart, Encode(next)); err != nil {
		return errors.Wrap(err, "persist cart")
	}
	return nil
}

func indexOf(lines []Line, productID int64) int {
	return slices.IndexFunc(lines, func(l Line) bool {
		return l.Product.ID == productID
	})
}

// Add puts quantity units of p into the cart. An existing line is
// incremented; otherwise a new line is appended at the end.
func (c *Store) Add(ctx context.Context, p product.Product, quantity int) error {
	switch {
	case quantity < 1:
		return ErrInvalidQuantity
	case quantity > MaxQuantity:
		return ErrQuantityTooLarge
	}
	return c.mutate(ctx, func(lines []Line) ([]Line, bool, error) {
		if i := indexOf(lines, p.ID); i >= 0 {
			if lines[i].Quantity > MaxQuantity-quantity {
				return nil, false, ErrQuantityTooLarge
			}
			lines[i].Quantity += quantity
			return lines, true, nil
		}
		return append(lines, Line{Product: p, Quantity: quantity}), true, nil
	})
}

// Remove deletes the line for productID, if any.
func (c *Store) Remove(ctx context.Context, productID int64) error {
	return c.mutate(ctx, func(lines []Line) ([]Line, bool, error) {
		i := indexOf(lines, productID)
		if i < 0 {
			return lines, false, nil
		}
		return slices.Delete(lines, i, i+1), true, nil
	})
}

// Update sets the quantity of productID's line. A quantity <= 0 removes the
// line. Unknown products are ignored.
func (c *Store) Update(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return c.Remove(ctx, productID)
	}
	if quantity > MaxQuantity {
		return ErrQuantityTooLarge
	}
	return c.mutate(ctx, func(lines []Line) ([]Line, bool, error) {
		i := indexOf(lines, productID)
		if i < 0 || lines[i].Quantity == quantity {
			return lines, false, nil
		}
		lines[i].Quantity = quantity
		return lines, true, nil
	})
}

// Refresh replaces the product snapshot of an existing line, keeping its
// quantity and position.
func (c *Store) Refresh(ctx context.Context, p product.Product) error {
	return c.mutate(ctx, func(lines []Line) ([]Line, bool, error) {
		i := indexOf(lines, p.ID)
		if i < 0 {
			return lines, false, nil
		}
		lines[i].Product = p
		return lines, true, nil
	})
}

// Clear empties the cart.
func (c *Store) Clear(ctx context.Context) error {
	return c.mutate(ctx, func([]Line) ([]Line, bool, error) {
		return nil, true, nil
	})
}

// Settle takes ordered items out of the cart. Each line loses the ordered
// quantity and is removed once nothing is left, so lines added or raised
// while the order was being placed stay in the cart.
func (c *Store) Settle(ctx context.Context, items []order.Item) error {
	return c.mutate(ctx, func(lines []Line) ([]Line, bool, error) {
		changed := false
		for _, it := range items {
			i := indexOf(lines, it.ProductID)
			if i < 0 {
				continue
			}
			changed = true
			if lines[i].Quantity > it.Quantity {
				lines[i].Quantity -= it.Quantity
				continue
			}
			lines = slices.Delete(lines, i, i+1)
		}
		return lines, changed, nil
	})
}

// Lines returns a copy of the lines in insertion order.
func (c *Store) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.lines)
}

// Line returns the line for productID.
func (c *Store) Line(productID int64) (Line, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := indexOf(c.lines, productID); i >= 0 {
		return c.lines[i], true
	}
	return Line{}, false
}

// Len is the number of lines.
func (c *Store) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Count is the total number of units across all lines.
func (c *Store) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

// Total is Σ price × quantity, computed from the current lines. No rounding
// is applied.
func (c *Store) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return total(c.lines)
}

func total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

// Snapshot is a consistent view of the cart.
type Snapshot struct {
	Lines []Line
	Total decimal.Decimal
	Count int
}

// Snapshot returns lines, total and count read under one lock.
func (c *Store) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{Lines: slices.Clone(c.lines), Total: total(c.lines)}
	for _, l := range c.lines {
		s.Count += l.Quantity
	}
	return s
}

// OrderItems converts lines into order items, in cart order.
func OrderItems(lines []Line) []order.Item {
	items := make([]order.Item, len(lines))
	for i, l := range lines {
		items[i] = order.Item{ProductID: l.Product.ID, Quantity: l.Quantity}
	}
	return items
}
