package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-storefront/internal/receipt"
)

const (
	insertReceiptSQL = `INSERT INTO receipts (namespace, order_id, total, items, placed_at)
		VALUES ($1, $2, $3, $4, $5)`

	listReceiptsSQL = `SELECT order_id, total, items, placed_at
		FROM receipts WHERE namespace = $1 ORDER BY placed_at DESC, id DESC LIMIT $2`
)

var _ receipt.Log = (*ReceiptLog)(nil)

// ReceiptLog implements receipt.Log on the receipts table.
type ReceiptLog struct {
	pool      *pgxpool.Pool
	namespace string
	limit     int
}

// NewReceiptLog returns a ReceiptLog scoped to namespace. List returns at
// most limit rows; limit <= 0 uses receipt.DefaultLimit.
func NewReceiptLog(pool *pgxpool.Pool, namespace string, limit int) *ReceiptLog {
	if limit <= 0 {
		limit = receipt.DefaultLimit
	}
	return &ReceiptLog{pool: pool, namespace: namespace, limit: limit}
}

// Append implements receipt.Log.
func (l *ReceiptLog) Append(ctx context.Context, r receipt.Receipt) error {
	_, err := l.pool.Exec(ctx, insertReceiptSQL, l.namespace, r.OrderID, r.Total, r.Items, r.PlacedAt)
	if err != nil {
		return errors.Wrapf(err, "insert receipt %q", r.OrderID)
	}
	return nil
}

// List implements receipt.Log.
func (l *ReceiptLog) List(ctx context.Context) ([]receipt.Receipt, error) {
	rows, err := l.pool.Query(ctx, listReceiptsSQL, l.namespace, l.limit)
	if err != nil {
		return nil, errors.Wrap(err, "list receipts")
	}
	return pgx.CollectRows(rows, scanReceipt)
}

func scanReceipt(row pgx.CollectableRow) (receipt.Receipt, error) {
	var (
		r     receipt.Receipt
		total decimal.Decimal
	)
	err := row.Scan(&r.OrderID, &total, &r.Items, &r.PlacedAt)
	r.Total = total
	return r, err
}
