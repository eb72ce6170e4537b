package product

import (
	"context"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item as served by the shop API. Values are snapshots:
// the client never mutates a fetched product.
type Product struct {
	ID          int64
	Title       string
	Description string
	Price       decimal.Decimal
	Brand       string
	Color       string
	Size        string
	Category    *Category
	Image       string
	InStock     bool
	CreatedAt   time.Time
}

// Category is the optional grouping a product belongs to.
type Category struct {
	ID   int64
	Name string
	Slug string
}

// Filter narrows a catalog listing. Empty fields are not sent.
type Filter struct {
	Search string
	Brand  string
	Color  string
	Size   string
}

// Values encodes the non-empty filter fields as query parameters.
func (f Filter) Values() url.Values {
	v := url.Values{}
	for _, p := range []struct{ key, value string }{
		{"search", f.Search},
		{"brand", f.Brand},
		{"color", f.Color},
		{"size", f.Size},
	} {
		if p.value != "" {
			v.Set(p.key, p.value)
		}
	}
	return v
}

// Catalog defines read operations against the remote product catalog.
type Catalog interface {
	ListProducts(ctx context.Context, f Filter) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
}

// Creator publishes new products. Only staff users may do so.
type Creator interface {
	CreateProduct(ctx context.Context, in NewProduct) (*Product, error)
}
