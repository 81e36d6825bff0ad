package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// InventoryItem is a sellable product with running stock counters.
type InventoryItem struct {
	bun.BaseModel `bun:"table:inventory_items"`

	ID        int64           `bun:",pk,autoincrement"`
	SKU       string          `bun:"sku,notnull,unique"`
	Name      string          `bun:"name,notnull"`
	Unit      string          `bun:"unit,notnull"`
	Price     decimal.Decimal `bun:"price,type:decimal(12,2),notnull"`
	StockIn   int             `bun:"stock_in,notnull"`
	StockOut  int             `bun:"stock_out,notnull"`
	Archived  bool            `bun:"archived,notnull"`
	CreatedAt time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time       `bun:"updated_at,nullzero"`
}

// Available returns the quantity that can still be sold.
func (i InventoryItem) Available() int {
	return i.StockIn - i.StockOut
}

// MovementKind classifies inventory ledger rows.
type MovementKind string

const (
	MovementRestock MovementKind = "restock"
	MovementDeduct  MovementKind = "deduct"
)

// InventoryMovement is an append-only ledger row for stock changes.
type InventoryMovement struct {
	bun.BaseModel `bun:"table:inventory_movements"`

	ID              int64        `bun:",pk,autoincrement"`
	InventoryItemID int64        `bun:"inventory_item_id,notnull"`
	OrderID         *int64       `bun:"order_id"`
	Kind            MovementKind `bun:"kind,notnull"`
	Quantity        int          `bun:"quantity,notnull"`
	CreatedAt       time.Time    `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
