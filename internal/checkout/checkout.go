// Package checkout turns the cart into an order.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-storefront/internal/cart"
	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/order"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/receipt"
)

var (
	// ErrEmptyCart is returned when there is nothing to order.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInProgress is returned while another checkout of the same cart is
	// still running.
	ErrInProgress = errors.New("checkout already in progress")
)

// PriceChange is one line whose price moved since it was added.
type PriceChange struct {
	ProductID int64
	Title     string
	Old, New  decimal.Decimal
}

// PriceChangedError is returned when re-validation found new prices. The
// cart already holds the new snapshots; checking out again places the order.
type PriceChangedError struct {
	Changes []PriceChange
}

func (e *PriceChangedError) Error() string {
	parts := make([]string, len(e.Changes))
	for i, c := range e.Changes {
		parts[i] = fmt.Sprintf("%s: %s -> %s", c.Title, c.Old.StringFixed(2), c.New.StringFixed(2))
	}
	return "prices changed: " + strings.Join(parts, ", ")
}

// ProductUnavailableError is returned when a cart product no longer exists.
type ProductUnavailableError struct {
	ProductID int64
	Title     string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %q (id %d) is no longer available", e.Title, e.ProductID)
}

// Result of a placed order.
type Result struct {
	OrderID string
	Total   decimal.Decimal
	// Items is the number of units ordered.
	Items int
}

// Cart is the part of the cart checkout needs.
type Cart interface {
	Snapshot() cart.Snapshot
	Refresh(ctx context.Context, p product.Product) error
	Settle(ctx context.Context, items []order.Item) error
}

// Session gates checkout on a signed-in user.
type Session interface {
	Authorize(staff bool) error
	Expire(ctx context.Context)
}

// Options configures a Service.
type Options struct {
	// RevalidatePrices re-fetches every cart product before ordering.
	RevalidatePrices bool
	Logger           *zap.Logger
	Now              func() time.Time
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service places orders from the cart.
type Service struct {
	cart     Cart
	orders   order.Placer
	session  Session
	catalog  product.Catalog
	receipts receipt.Log
	opts     Options

	running atomic.Bool
}

// NewService creates a checkout Service. catalog is only used when
// RevalidatePrices is set; receipts may be nil.
func NewService(
	c Cart,
	orders order.Placer,
	session Session,
	catalog product.Catalog,
	receipts receipt.Log,
	opts Options,
) *Service {
	opts.setDefaults()
	return &Service{
		cart:     c,
		orders:   orders,
		session:  session,
		catalog:  catalog,
		receipts: receipts,
		opts:     opts,
	}
}

// Checkout submits the cart as an order. Only after the API accepted the
// order are the ordered items taken out of the cart; changes made
// meanwhile are kept. One checkout runs at a time.
func (s *Service) Checkout(ctx context.Context) (*Result, error) {
	if err := s.session.Authorize(false); err != nil {
		return nil, err
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrInProgress
	}
	defer s.running.Store(false)

	snap := s.cart.Snapshot()
	if len(snap.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	if s.opts.RevalidatePrices {
		if err := s.revalidate(ctx, snap.Lines); err != nil {
			return nil, err
		}
	}

	items := cart.OrderItems(snap.Lines)
	o, err := s.orders.CreateOrder(ctx, items)
	if err != nil {
		if errors.Is(err, auth.ErrAuthRequired) {
			s.session.Expire(ctx)
		}
		return nil, errors.Wrap(err, "place order")
	}
	if o == nil || o.ID == "" {
		return nil, errors.New("place order: response has no order id")
	}

	res := &Result{OrderID: o.ID, Total: snap.Total, Items: snap.Count}
	lg := s.opts.Logger.With(zap.String("order_id", o.ID))

	if err := s.cart.Settle(ctx, items); err != nil {
		// The order exists; a stale cart is recoverable by the user.
		lg.Warn("Settle cart after checkout", zap.Error(err))
	}
	if s.receipts != nil {
		r := receipt.Receipt{OrderID: o.ID, Total: snap.Total, Items: snap.Count, PlacedAt: s.opts.Now()}
		if err := s.receipts.Append(ctx, r); err != nil {
			lg.Warn("Record receipt", zap.Error(err))
		}
	}
	lg.Info("Order placed", zap.Stringer("total", snap.Total), zap.Int("items", snap.Count))
	return res, nil
}

// revalidate fetches every cart product and refreshes snapshots whose price
// changed, reporting them as *PriceChangedError.
func (s *Service) revalidate(ctx context.Context, lines []cart.Line) error {
	fresh := make([]*product.Product, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, l := range lines {
		g.Go(func() error {
			p, err := s.catalog.GetProduct(gctx, l.Product.ID)
			if err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return &ProductUnavailableError{ProductID: l.Product.ID, Title: l.Product.Title}
				}
				return errors.Wrapf(err, "revalidate product %d", l.Product.ID)
			}
			fresh[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var changes []PriceChange
	for i, l := range lines {
		p := fresh[i]
		if p.Price.Equal(l.Product.Price) {
			continue
		}
		changes = append(changes, PriceChange{
			ProductID: p.ID,
			Title:     p.Title,
			Old:       l.Product.Price,
			New:       p.Price,
		})
		if err := s.cart.Refresh(ctx, *p); err != nil {
			return errors.Wrap(err, "refresh cart line")
		}
	}
	if len(changes) > 0 {
		return &PriceChangedError{Changes: changes}
	}
	return nil
}
