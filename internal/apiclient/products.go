package apiclient

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/product"
)

var (
	_ product.Catalog = (*Client)(nil)
	_ product.Creator = (*Client)(nil)

	_ JXDecoder = (*product.Product)(nil)
	_ JXDecoder = (*productListJSON)(nil)
)

// productListJSON decodes a product array.
type productListJSON []product.Product

func (l *productListJSON) Decode(d *jx.Decoder) error {
	return d.Arr(func(d *jx.Decoder) error {
		var p product.Product
		if err := p.Decode(d); err != nil {
			return err
		}
		*l = append(*l, p)
		return nil
	})
}

// createProductJSON is the body of POST /api/products/.
type createProductJSON struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Brand       string          `json:"brand"`
	Color       string          `json:"color"`
	Size        string          `json:"size"`
	CategoryID  *int64          `json:"category_id"`
}

// ListProducts returns the catalog, narrowed by f.
func (c *Client) ListProducts(ctx context.Context, f product.Filter) ([]product.Product, error) {
	resp := productListJSON{}
	if err := c.Do(ctx, Request{Path: "/api/products/", Query: f.Values()}, &resp); err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return resp, nil
}

// GetProduct returns a single product. A 404 becomes product.ErrNotFound.
func (c *Client) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	var resp product.Product
	path := "/api/products/" + strconv.FormatInt(id, 10) + "/"
	if err := c.Do(ctx, Request{Path: path}, &resp); err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return &resp, nil
}

// CreateProduct publishes a new product. Non-staff users get a 403, which
// matches auth.ErrForbidden.
func (c *Client) CreateProduct(ctx context.Context, in product.NewProduct) (*product.Product, error) {
	body := createProductJSON{
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Brand:       in.Brand,
		Color:       in.Color,
		Size:        in.Size,
	}
	if in.CategoryID > 0 {
		body.CategoryID = &in.CategoryID
	}

	var resp product.Product
	if err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/api/products/", Body: body}, &resp); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return &resp, nil
}
