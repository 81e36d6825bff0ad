package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// PaymentMethod identifies the channel a customer paid through.
type PaymentMethod string

const (
	MethodGCash    PaymentMethod = "gcash"
	MethodPayPal   PaymentMethod = "paypal"
	MethodPayMongo PaymentMethod = "paymongo"
)

// Valid reports whether the method is one we accept proofs for.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodGCash, MethodPayPal, MethodPayMongo:
		return true
	}
	return false
}

// RecordStatus is shared by transactions and payment records.
type RecordStatus string

const (
	RecordPending   RecordStatus = "Pending"
	RecordCompleted RecordStatus = "Completed"
	RecordRejected  RecordStatus = "Rejected"
)

// Transaction is a payment claim submitted by a customer for an order.
type Transaction struct {
	bun.BaseModel `bun:"table:transactions"`

	ID            int64           `bun:",pk,autoincrement"`
	OrderID       int64           `bun:"order_id,notnull"`
	UserID        int64           `bun:"user_id,notnull"`
	Method        PaymentMethod   `bun:"method,notnull"`
	Status        RecordStatus    `bun:"status,notnull"`
	Amount        decimal.Decimal `bun:"amount,type:decimal(12,2),notnull"`
	ReferenceCode string          `bun:"reference_code,notnull"`
	ProofImage    string          `bun:"proof_image"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero"`
}

// PaymentRecord is the per-order payment status surfaced to dashboards.
type PaymentRecord struct {
	bun.BaseModel `bun:"table:payment_records"`

	ID        int64        `bun:",pk,autoincrement"`
	OrderID   int64        `bun:"order_id,notnull,unique"`
	UserID    int64        `bun:"user_id,notnull"`
	Status    RecordStatus `bun:"status,notnull"`
	UpdatedAt time.Time    `bun:"updated_at,nullzero"`
}

// Settlement marks an order whose payment was validated and applied.
type Settlement struct {
	bun.BaseModel `bun:"table:settlements"`

	ID             int64     `bun:",pk,autoincrement"`
	OrderID        int64     `bun:"order_id,notnull,unique"`
	IdempotencyKey string    `bun:"idempotency_key,notnull,unique"`
	WorkerID       int64     `bun:"worker_id,notnull"`
	Message        string    `bun:"message"`
	SettledAt      time.Time `bun:"settled_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
