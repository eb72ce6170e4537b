package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/domain/order"
)

var _ order.Placer = (*Client)(nil)

type createOrderJSON struct {
	ItemsData []order.Item `json:"items_data"`
}

type orderJSON struct {
	// ID is a number in the Django API; the raw form keeps strings too.
	ID         json.RawMessage  `json:"id"`
	Status     string           `json:"status"`
	TotalPrice *decimal.Decimal `json:"total_price"`
}

func (o orderJSON) id() string {
	id := strings.Trim(strings.TrimSpace(string(o.ID)), `"`)
	if id == "null" {
		return ""
	}
	return id
}

// CreateOrder submits items as a new order for the signed-in user.
func (c *Client) CreateOrder(ctx context.Context, items []order.Item) (*order.Order, error) {
	var resp orderJSON
	req := Request{
		Method: http.MethodPost,
		Path:   "/api/orders/",
		Body:   createOrderJSON{ItemsData: items},
	}
	if err := c.Do(ctx, req, &resp); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	o := &order.Order{
		ID:     resp.id(),
		Status: resp.Status,
		Items:  items,
	}
	if resp.TotalPrice != nil {
		o.TotalPrice = *resp.TotalPrice
	}
	return o, nil
}
