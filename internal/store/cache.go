package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/example/pofinance/internal/ledger"
)

// POCache persists already-seen PO records locally. Everything but status is
// write-once: buyer, vendor, amount, delivery date and category never change
// after creation, so a cached record can stand in for a ledger read that
// fails mid-scan. Amounts are stored in application form; the ledger's scaled
// encoding never reaches this layer.
type POCache struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS purchase_orders (
	id             INTEGER PRIMARY KEY,
	buyer          TEXT    NOT NULL,
	vendor         TEXT    NOT NULL,
	amount         TEXT    NOT NULL,
	delivery_date  INTEGER NOT NULL,
	goods_category TEXT    NOT NULL,
	status         INTEGER NOT NULL
);`

// OpenPOCache opens (creating if needed) the cache database at path.
func OpenPOCache(path string) (*POCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open po cache: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize po cache: %w", err)
	}
	return &POCache{db: db}, nil
}

// Get returns the cached record for id, or ledger.ErrNotFound.
func (c *POCache) Get(ctx context.Context, id uint64) (*ledger.PurchaseOrder, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, buyer, vendor, amount, delivery_date, goods_category, status
		 FROM purchase_orders WHERE id = ?`, id)

	var po ledger.PurchaseOrder
	var amount string
	var deliveryDate int64
	var status uint8
	err := row.Scan(&po.ID, &po.Buyer, &po.Vendor, &amount, &deliveryDate, &po.GoodsCategory, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("po %d not cached: %w", id, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached po %d: %w", id, err)
	}

	po.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("cached po %d has malformed amount: %w", id, err)
	}
	po.DeliveryDate = time.Unix(deliveryDate, 0).UTC()
	po.Status = ledger.POStatus(status)
	return &po, nil
}

// Put upserts a record. On conflict only status is updated, keeping the
// immutable fields write-once.
func (c *POCache) Put(ctx context.Context, po *ledger.PurchaseOrder) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO purchase_orders (id, buyer, vendor, amount, delivery_date, goods_category, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status`,
		po.ID, po.Buyer, po.Vendor, po.Amount.String(), po.DeliveryDate.Unix(), po.GoodsCategory, uint8(po.Status))
	if err != nil {
		return fmt.Errorf("failed to cache po %d: %w", po.ID, err)
	}
	return nil
}

// Close releases the underlying database.
func (c *POCache) Close() error {
	return c.db.Close()
}
