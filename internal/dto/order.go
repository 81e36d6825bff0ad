package dto

import (
	"time"

	"github.com/Additional-Code/tableside/internal/entity"
)

// OrderItemResponse is one line of an order.
type OrderItemResponse struct {
	ID              int64  `json:"id"`
	InventoryItemID int64  `json:"inventory_item_id"`
	Quantity        int    `json:"quantity"`
	UnitPrice       string `json:"unit_price"`
}

// OrderResponse represents an order as exposed via transport layers.
type OrderResponse struct {
	ID            int64               `json:"id"`
	Number        string              `json:"number"`
	UserID        int64               `json:"user_id"`
	OrderStatus   string              `json:"order_status"`
	PaymentStatus string              `json:"payment_status"`
	Total         string              `json:"total"`
	CreatedBy     *int64              `json:"created_by,omitempty"`
	Items         []OrderItemResponse `json:"items,omitempty"`
	OrderDate     time.Time           `json:"order_date"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// TransactionResponse is a submitted payment claim.
type TransactionResponse struct {
	ID            int64     `json:"id"`
	OrderID       int64     `json:"order_id"`
	Method        string    `json:"method"`
	Status        string    `json:"status"`
	Amount        string    `json:"amount"`
	ReferenceCode string    `json:"reference_code"`
	ProofImage    string    `json:"proof_image,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SettlementResponse describes the outcome of a settlement call.
type SettlementResponse struct {
	OrderID        int64         `json:"order_id"`
	IdempotencyKey string        `json:"idempotency_key"`
	WorkerID       int64         `json:"worker_id"`
	Message        string        `json:"message,omitempty"`
	SettledAt      time.Time     `json:"settled_at"`
	Replayed       bool          `json:"replayed"`
	Order          OrderResponse `json:"order"`
}

// Order maps an order entity.
func Order(o *entity.Order) OrderResponse {
	out := OrderResponse{
		ID:            o.ID,
		Number:        o.Number,
		UserID:        o.UserID,
		OrderStatus:   string(o.OrderStatus),
		PaymentStatus: string(o.PaymentStatus),
		Total:         o.Total.StringFixed(2),
		CreatedBy:     o.CreatedBy,
		OrderDate:     o.OrderDate,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, it := range o.Items {
		out.Items = append(out.Items, OrderItemResponse{
			ID:              it.ID,
			InventoryItemID: it.InventoryItemID,
			Quantity:        it.Quantity,
			UnitPrice:       it.UnitPrice.StringFixed(2),
		})
	}
	return out
}

// Orders maps a slice of orders.
func Orders(in []entity.Order) []OrderResponse {
	out := make([]OrderResponse, 0, len(in))
	for i := range in {
		out = append(out, Order(&in[i]))
	}
	return out
}

// Transaction maps a transaction entity.
func Transaction(t *entity.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID,
		OrderID:       t.OrderID,
		Method:        string(t.Method),
		Status:        string(t.Status),
		Amount:        t.Amount.StringFixed(2),
		ReferenceCode: t.ReferenceCode,
		ProofImage:    t.ProofImage,
		CreatedAt:     t.CreatedAt,
	}
}

// Transactions maps a slice of transactions.
func Transactions(in []entity.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(in))
	for i := range in {
		out = append(out, Transaction(&in[i]))
	}
	return out
}
