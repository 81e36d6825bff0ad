package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// OrderStatus tracks kitchen progress for an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderPreparing OrderStatus = "Preparing"
	OrderServed    OrderStatus = "Served"
	OrderCancelled OrderStatus = "Cancelled"
)

// PaymentStatus tracks where an order sits in the payment lifecycle.
type PaymentStatus string

const (
	PaymentUnpaid            PaymentStatus = "Unpaid"
	PaymentPendingValidation PaymentStatus = "PendingValidation"
	PaymentPaid              PaymentStatus = "Paid"
)

var paymentTransitions = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentUnpaid:            {PaymentPendingValidation: true},
	PaymentPendingValidation: {PaymentPaid: true, PaymentUnpaid: true},
	PaymentPaid:              {},
}

// CanTransition reports whether the payment status may move from one state to another.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	return paymentTransitions[s][to]
}

var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:   {OrderPreparing: true, OrderCancelled: true},
	OrderPreparing: {OrderServed: true},
	OrderServed:    {},
	OrderCancelled: {},
}

// CanTransition reports whether the order status may move from one state to another.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	return orderTransitions[s][to]
}

// Order represents a customer order stored in the relational database.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            int64           `bun:",pk,autoincrement"`
	Number        string          `bun:"number,notnull,unique"`
	UserID        int64           `bun:"user_id,notnull"`
	OrderStatus   OrderStatus     `bun:"order_status,notnull"`
	PaymentStatus PaymentStatus   `bun:"payment_status,notnull"`
	Total         decimal.Decimal `bun:"total,type:decimal(12,2),notnull"`
	CreatedBy     *int64          `bun:"created_by"`
	OrderDate     time.Time       `bun:"order_date,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero"`

	Items []OrderItem `bun:"rel:has-many,join:id=order_id"`
}

// OrderItem is a priced line on an order.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items"`

	ID              int64           `bun:",pk,autoincrement"`
	OrderID         int64           `bun:"order_id,notnull"`
	InventoryItemID int64           `bun:"inventory_item_id,notnull"`
	Quantity        int             `bun:"quantity,notnull"`
	UnitPrice       decimal.Decimal `bun:"unit_price,type:decimal(12,2),notnull"`
}
