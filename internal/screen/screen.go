// Package screen holds the view-models behind each storefront page. Every
// screen drives a loadstate.Machine and turns errors into inline messages;
// nothing here panics on a failed request.
package screen

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-storefront/internal/apiclient"
	"github.com/xenking/kart-storefront/internal/cart"
	"github.com/xenking/kart-storefront/internal/checkout"
	"github.com/xenking/kart-storefront/internal/domain/auth"
	"github.com/xenking/kart-storefront/internal/domain/product"
	"github.com/xenking/kart-storefront/internal/loadstate"
	"github.com/xenking/kart-storefront/internal/session"
)

// ErrSessionPending is returned by guarded screens while the session is
// still being resolved.
var ErrSessionPending = errors.New("session is not resolved yet")

// Message renders err for display.
func Message(err error) string {
	var (
		pce *checkout.PriceChangedError
		pue *checkout.ProductUnavailableError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSessionPending):
		return "Checking your session, try again in a moment."
	case errors.Is(err, session.ErrBadCredentials):
		return "Invalid username or password."
	case errors.Is(err, checkout.ErrEmptyCart):
		return "Your cart is empty."
	case errors.Is(err, cart.ErrInvalidQuantity):
		return "Quantity must be at least 1."
	case errors.Is(err, cart.ErrQuantityTooLarge):
		return "That quantity is too large."
	case errors.Is(err, checkout.ErrInProgress):
		return "Your order is already being placed."
	case errors.As(err, &pce):
		return "Prices have changed (" + pce.Error() + "). Review your cart and check out again."
	case errors.As(err, &pue):
		return pue.Error() + ". Remove it from your cart to continue."
	}
	return apiclient.UserMessage(err)
}

// Guard is the session view the guarded screens need.
type Guard interface {
	Resolved() bool
	Authorize(staff bool) error
}

func requireStaff(g Guard) error {
	if !g.Resolved() {
		return ErrSessionPending
	}
	return g.Authorize(true)
}

// Catalog lists products.
type Catalog struct {
	catalog product.Catalog
	state   loadstate.Machine[[]product.Product]
}

// NewCatalog creates an Idle catalog screen.
func NewCatalog(c product.Catalog) *Catalog {
	return &Catalog{catalog: c}
}

// Load fetches the listing for f. Responses for an older filter are
// dropped.
func (s *Catalog) Load(ctx context.Context, f product.Filter) loadstate.Snapshot[[]product.Product] {
	t := s.state.Begin(f.Values().Encode())
	items, err := s.catalog.ListProducts(ctx, f)
	if err != nil {
		s.state.Fail(t, Message(err))
	} else {
		s.state.Succeed(t, items)
	}
	return s.state.Snapshot()
}

// State returns the last listing.
func (s *Catalog) State() loadstate.Snapshot[[]product.Product] {
	return s.state.Snapshot()
}

// ProductDetail shows one product and adds it to the cart.
type ProductDetail struct {
	catalog product.Catalog
	cart    *cart.Store
	state   loadstate.Machine[*product.Product]
}

// NewProductDetail creates a detail screen adding to cs.
func NewProductDetail(c product.Catalog, cs *cart.Store) *ProductDetail {
	return &ProductDetail{catalog: c, cart: cs}
}

// Open loads product id. A response for a product opened earlier never
// replaces the current one.
func (s *ProductDetail) Open(ctx context.Context, id int64) loadstate.Snapshot[*product.Product] {
	t := s.state.Begin(strconv.FormatInt(id, 10))
	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		s.state.Fail(t, Message(err))
	} else {
		s.state.Succeed(t, p)
	}
	return s.state.Snapshot()
}

// State returns the open product.
func (s *ProductDetail) State() loadstate.Snapshot[*product.Product] {
	return s.state.Snapshot()
}

// AddToCart adds one unit of the open product and returns the confirmation
// or error message.
func (s *ProductDetail) AddToCart(ctx context.Context) (string, error) {
	snap := s.state.Snapshot()
	if snap.Status != loadstate.Success || snap.Value == nil {
		return "", errors.New("no product is open")
	}
	if err := s.cart.Add(ctx, *snap.Value, 1); err != nil {
		return Message(err), err
	}
	return "Added to cart.", nil
}

// Login signs the user in.
type Login struct {
	session *session.Manager
	state   loadstate.Machine[*auth.User]
}

// NewLogin creates a login screen for m.
func NewLogin(m *session.Manager) *Login {
	return &Login{session: m}
}

// Submit signs in with the given credentials. Empty fields fail without a
// request.
func (s *Login) Submit(ctx context.Context, username, password string) loadstate.Snapshot[*auth.User] {
	t := s.state.Begin(username)
	if username == "" || password == "" {
		s.state.Fail(t, "Enter username and password.")
		return s.state.Snapshot()
	}
	u, err := s.session.Login(ctx, username, password)
	if err != nil {
		s.state.Fail(t, Message(err))
	} else {
		s.state.Succeed(t, u)
	}
	return s.state.Snapshot()
}

// Checkout places the cart as an order.
type Checkout struct {
	svc   *checkout.Service
	state loadstate.Machine[*checkout.Result]
}

// NewCheckout creates a checkout screen over svc.
func NewCheckout(svc *checkout.Service) *Checkout {
	return &Checkout{svc: svc}
}

// Submit places the order.
func (s *Checkout) Submit(ctx context.Context) loadstate.Snapshot[*checkout.Result] {
	t := s.state.Begin("checkout")
	res, err := s.svc.Checkout(ctx)
	if err != nil {
		s.state.Fail(t, Message(err))
	} else {
		s.state.Succeed(t, res)
	}
	return s.state.Snapshot()
}

// Admin manages products. Both operations require a staff session.
type Admin struct {
	guard   Guard
	catalog product.Catalog
	creator product.Creator

	list    loadstate.Machine[[]product.Product]
	created loadstate.Machine[*product.Product]
}

// NewAdmin creates an admin screen guarded by g.
func NewAdmin(g Guard, c product.Catalog, cr product.Creator) *Admin {
	return &Admin{guard: g, catalog: c, creator: cr}
}

// Refresh reloads the product list.
func (s *Admin) Refresh(ctx context.Context) (loadstate.Snapshot[[]product.Product], error) {
	t := s.list.Begin("")
	if err := requireStaff(s.guard); err != nil {
		s.list.Fail(t, Message(err))
		return s.list.Snapshot(), err
	}
	items, err := s.catalog.ListProducts(ctx, product.Filter{})
	if err != nil {
		s.list.Fail(t, Message(err))
		return s.list.Snapshot(), err
	}
	s.list.Succeed(t, items)
	return s.list.Snapshot(), nil
}

// Create validates d and publishes it. On success the list is refreshed.
func (s *Admin) Create(ctx context.Context, d product.Draft) (loadstate.Snapshot[*product.Product], error) {
	t := s.created.Begin(d.Title)
	if err := requireStaff(s.guard); err != nil {
		s.created.Fail(t, Message(err))
		return s.created.Snapshot(), err
	}
	in, err := d.Validate()
	if err != nil {
		s.created.Fail(t, Message(err))
		return s.created.Snapshot(), err
	}
	p, err := s.creator.CreateProduct(ctx, in)
	if err != nil {
		s.created.Fail(t, Message(err))
		return s.created.Snapshot(), err
	}
	s.created.Succeed(t, p)
	// A failed reload shows up on the list state only.
	_, _ = s.Refresh(ctx)
	return s.created.Snapshot(), nil
}

// Products returns the last loaded product list.
func (s *Admin) Products() loadstate.Snapshot[[]product.Product] {
	return s.list.Snapshot()
}
