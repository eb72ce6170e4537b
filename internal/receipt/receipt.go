// Package receipt keeps a local history of orders placed from this client,
// so the last order number stays visible after the cart is cleared.
package receipt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/storage"
)

// DefaultLimit is how many receipts KVLog keeps.
const DefaultLimit = 50

// Receipt records one successful checkout.
type Receipt struct {
	OrderID  string          `json:"order_id"`
	Total    decimal.Decimal `json:"total"`
	Items    int             `json:"items"`
	PlacedAt time.Time       `json:"placed_at"`
}

// Log stores receipts.
type Log interface {
	Append(ctx context.Context, r Receipt) error
	// List returns receipts newest first.
	List(ctx context.Context) ([]Receipt, error)
}

var _ Log = (*KVLog)(nil)

// KVLog keeps receipts as a JSON list under storage.KeyReceipts.
type KVLog struct {
	mu    sync.Mutex
	store storage.Store
	limit int
}

// NewKVLog returns a KVLog capped at limit entries. A limit <= 0 uses
// DefaultLimit.
func NewKVLog(store storage.Store, limit int) *KVLog {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &KVLog{store: store, limit: limit}
}

// Append implements Log.
func (l *KVLog) Append(ctx context.Context, r Receipt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	list, err := l.load(ctx)
	if err != nil {
		return err
	}
	list = append([]Receipt{r}, list...)
	if len(list) > l.limit {
		list = list[:l.limit]
	}

	data, err := json.Marshal(list)
	if err != nil {
		return errors.Wrap(err, "marshal receipts")
	}
	if err := l.store.Set(ctx, storage.KeyReceipts, data); err != nil {
		return errors.Wrap(err, "save receipts")
	}
	return nil
}

// List implements Log.
func (l *KVLog) List(ctx context.Context) ([]Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

func (l *KVLog) load(ctx context.Context) ([]Receipt, error) {
	data, err := l.store.Get(ctx, storage.KeyReceipts)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "load receipts")
	}
	var list []Receipt
	if err := json.Unmarshal(data, &list); err != nil {
		// A damaged history is not worth failing a checkout over.
		return nil, nil
	}
	return list, nil
}
