package dto

import (
	"time"

	"github.com/Additional-Code/tableside/internal/entity"
)

// InventoryResponse is a menu item with its stock counters.
type InventoryResponse struct {
	ID        int64     `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Price     string    `json:"price"`
	StockIn   int       `json:"stock_in"`
	StockOut  int       `json:"stock_out"`
	Available int       `json:"available"`
	Archived  bool      `json:"archived"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MovementResponse is a stock ledger row.
type MovementResponse struct {
	ID        int64     `json:"id"`
	OrderID   *int64    `json:"order_id,omitempty"`
	Kind      string    `json:"kind"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// Inventory maps an inventory item.
func Inventory(it *entity.InventoryItem) InventoryResponse {
	return InventoryResponse{
		ID:        it.ID,
		SKU:       it.SKU,
		Name:      it.Name,
		Unit:      it.Unit,
		Price:     it.Price.StringFixed(2),
		StockIn:   it.StockIn,
		StockOut:  it.StockOut,
		Available: it.Available(),
		Archived:  it.Archived,
		UpdatedAt: it.UpdatedAt,
	}
}

// Inventories maps a slice of inventory items.
func Inventories(in []entity.InventoryItem) []InventoryResponse {
	out := make([]InventoryResponse, 0, len(in))
	for i := range in {
		out = append(out, Inventory(&in[i]))
	}
	return out
}

// Movements maps ledger rows.
func Movements(in []entity.InventoryMovement) []MovementResponse {
	out := make([]MovementResponse, 0, len(in))
	for _, m := range in {
		out = append(out, MovementResponse{
			ID:        m.ID,
			OrderID:   m.OrderID,
			Kind:      string(m.Kind),
			Quantity:  m.Quantity,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}
