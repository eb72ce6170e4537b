package order

import (
	"context"

	"github.com/shopspring/decimal"
)

// Order is the server-side record created from a cart. The client only
// relies on ID; the remaining fields are shown when the API returns them.
type Order struct {
	ID         string
	Status     string
	TotalPrice decimal.Decimal
	Items      []Item
}

// Item is a single (product, quantity) pair submitted with an order.
type Item struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Placer submits orders on behalf of the signed-in user.
type Placer interface {
	CreateOrder(ctx context.Context, items []Item) (*Order, error)
}
