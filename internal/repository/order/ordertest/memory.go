// Package ordertest provides an in-memory order store for service tests.
package ordertest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Additional-Code/tableside/internal/entity"
	repo "github.com/Additional-Code/tableside/internal/repository/order"
)

// Store keeps orders, payments and stock in maps. InTx runs against a copy
// of the state and only swaps it in when fn succeeds, so a failed unit of
// work leaves nothing behind.
type Store struct {
	mu    sync.Mutex
	state *state

	// FailOn makes the named Tx method return the given error once.
	FailOn map[string]error
}

type state struct {
	nextID       int64
	orders       map[int64]entity.Order
	items        map[int64][]entity.OrderItem
	transactions map[int64][]entity.Transaction
	records      map[int64]entity.PaymentRecord
	stock        map[int64]entity.InventoryItem
	movements    []entity.InventoryMovement
	settlements  map[int64]entity.Settlement
}

// New returns an empty store.
func New() *Store {
	return &Store{state: &state{
		orders:       map[int64]entity.Order{},
		items:        map[int64][]entity.OrderItem{},
		transactions: map[int64][]entity.Transaction{},
		records:      map[int64]entity.PaymentRecord{},
		stock:        map[int64]entity.InventoryItem{},
		settlements:  map[int64]entity.Settlement{},
	}}
}

func (s *state) clone() *state {
	c := &state{
		nextID:       s.nextID,
		orders:       make(map[int64]entity.Order, len(s.orders)),
		items:        make(map[int64][]entity.OrderItem, len(s.items)),
		transactions: make(map[int64][]entity.Transaction, len(s.transactions)),
		records:      make(map[int64]entity.PaymentRecord, len(s.records)),
		stock:        make(map[int64]entity.InventoryItem, len(s.stock)),
		movements:    append([]entity.InventoryMovement(nil), s.movements...),
		settlements:  make(map[int64]entity.Settlement, len(s.settlements)),
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]entity.OrderItem(nil), v...)
	}
	for k, v := range s.transactions {
		c.transactions[k] = append([]entity.Transaction(nil), v...)
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, v := range s.settlements {
		c.settlements[k] = v
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// PutStock seeds an inventory item.
func (s *Store) PutStock(item entity.InventoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.stock[item.ID] = item
}

// Stock returns the current inventory item.
func (s *Store) Stock(id int64) entity.InventoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.stock[id]
}

// Movements returns a copy of the stock ledger.
func (s *Store) Movements() []entity.InventoryMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.InventoryMovement(nil), s.state.movements...)
}

// Record returns the payment record for an order.
func (s *Store) Record(orderID int64) (entity.PaymentRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.state.records[orderID]
	return r, ok
}

// InTx serializes units of work, which stands in for the order row lock.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(ctx, &tx{state: work, store: s}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Create stores an order and its items.
func (s *Store) Create(_ context.Context, order *entity.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.state.orders {
		if o.Number == order.Number {
			return repo.ErrDuplicate
		}
	}
	order.ID = s.state.id()
	if order.OrderDate.IsZero() {
		order.OrderDate = time.Now().UTC()
	}
	for i := range order.Items {
		order.Items[i].ID = s.state.id()
		order.Items[i].OrderID = order.ID
	}
	stored := *order
	stored.Items = nil
	s.state.orders[order.ID] = stored
	s.state.items[order.ID] = append([]entity.OrderItem(nil), order.Items...)
	return nil
}

// GetByID returns an order with its items.
func (s *Store) GetByID(_ context.Context, id int64) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.order(id)
}

func (s *state) order(id int64) (*entity.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	o.Items = append([]entity.OrderItem(nil), s.items[id]...)
	return &o, nil
}

// List returns orders newest first.
func (s *Store) List(_ context.Context, f repo.Filter) ([]entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Order
	for id, o := range s.state.orders {
		if f.UserID > 0 && o.UserID != f.UserID {
			continue
		}
		if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
			continue
		}
		o.Items = append([]entity.OrderItem(nil), s.state.items[id]...)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// UpdateOrderStatus moves the kitchen status when it still equals from.
func (s *Store) UpdateOrderStatus(_ context.Context, id int64, from, to entity.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	if !ok || o.OrderStatus != from {
		return repo.ErrStaleState
	}
	o.OrderStatus = to
	s.state.orders[id] = o
	return nil
}

// Transactions lists payment claims for an order.
func (s *Store) Transactions(_ context.Context, orderID int64) ([]entity.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.Transaction(nil), s.state.transactions[orderID]...), nil
}

// Settlement returns the settlement for an order.
func (s *Store) Settlement(_ context.Context, orderID int64) (*entity.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state.settlements[orderID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &st, nil
}

type tx struct {
	state *state
	store *Store
}

func (t *tx) fail(op string) error {
	if err, ok := t.store.FailOn[op]; ok {
		delete(t.store.FailOn, op)
		return err
	}
	return nil
}

func (t *tx) LockOrder(_ context.Context, id int64) (*entity.Order, error) {
	if err := t.fail("LockOrder"); err != nil {
		return nil, err
	}
	o, err := t.state.order(id)
	if err != nil {
		return nil, err
	}
	o.Items = nil
	return o, nil
}

func (t *tx) OrderItems(_ context.Context, orderID int64) ([]entity.OrderItem, error) {
	if err := t.fail("OrderItems"); err != nil {
		return nil, err
	}
	return append([]entity.OrderItem(nil), t.state.items[orderID]...), nil
}

func (t *tx) SetPaymentStatus(_ context.Context, orderID int64, from, to entity.PaymentStatus, actor *int64) error {
	if err := t.fail("SetPaymentStatus"); err != nil {
		return err
	}
	o, ok := t.state.orders[orderID]
	if !ok || o.PaymentStatus != from {
		return repo.ErrStaleState
	}
	o.PaymentStatus = to
	if actor != nil {
		a := *actor
		o.CreatedBy = &a
	}
	t.state.orders[orderID] = o
	return nil
}

func (t *tx) SetOrderStatus(_ context.Context, orderID int64, from, to entity.OrderStatus) error {
	if err := t.fail("SetOrderStatus"); err != nil {
		return err
	}
	o, ok := t.state.orders[orderID]
	if !ok || o.OrderStatus != from {
		return repo.ErrStaleState
	}
	o.OrderStatus = to
	t.state.orders[orderID] = o
	return nil
}

func (t *tx) InsertTransaction(_ context.Context, tr *entity.Transaction) error {
	if err := t.fail("InsertTransaction"); err != nil {
		return err
	}
	for _, list := range t.state.transactions {
		for _, existing := range list {
			if existing.ReferenceCode == tr.ReferenceCode {
				return repo.ErrDuplicate
			}
		}
	}
	tr.ID = t.state.id()
	t.state.transactions[tr.OrderID] = append(t.state.transactions[tr.OrderID], *tr)
	return nil
}

func (t *tx) SetTransactionStatus(_ context.Context, orderID int64, from, to entity.RecordStatus) (int64, error) {
	if err := t.fail("SetTransactionStatus"); err != nil {
		return 0, err
	}
	var n int64
	list := t.state.transactions[orderID]
	for i := range list {
		if list[i].Status == from {
			list[i].Status = to
			n++
		}
	}
	return n, nil
}

func (t *tx) UpsertPaymentRecord(_ context.Context, rec *entity.PaymentRecord) error {
	if err := t.fail("UpsertPaymentRecord"); err != nil {
		return err
	}
	if existing, ok := t.state.records[rec.OrderID]; ok {
		rec.ID = existing.ID
	} else {
		rec.ID = t.state.id()
	}
	t.state.records[rec.OrderID] = *rec
	return nil
}

func (t *tx) SetPaymentRecordStatus(_ context.Context, orderID int64, from, to entity.RecordStatus) error {
	if err := t.fail("SetPaymentRecordStatus"); err != nil {
		return err
	}
	rec, ok := t.state.records[orderID]
	if !ok || rec.Status != from {
		return repo.ErrStaleState
	}
	rec.Status = to
	t.state.records[orderID] = rec
	return nil
}

func (t *tx) DeductStock(_ context.Context, orderID, itemID int64, qty int) error {
	if err := t.fail("DeductStock"); err != nil {
		return err
	}
	item, ok := t.state.stock[itemID]
	if !ok || item.Available() < qty {
		return repo.ErrInsufficientStock
	}
	for _, m := range t.state.movements {
		if m.Kind == entity.MovementDeduct && m.InventoryItemID == itemID && m.OrderID != nil && *m.OrderID == orderID {
			return repo.ErrDuplicate
		}
	}
	item.StockOut += qty
	t.state.stock[itemID] = item
	oid := orderID
	t.state.movements = append(t.state.movements, entity.InventoryMovement{
		ID:              t.state.id(),
		InventoryItemID: itemID,
		OrderID:         &oid,
		Kind:            entity.MovementDeduct,
		Quantity:        qty,
	})
	return nil
}

func (t *tx) FindSettlement(_ context.Context, orderID int64) (*entity.Settlement, error) {
	st, ok := t.state.settlements[orderID]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &st, nil
}

func (t *tx) InsertSettlement(_ context.Context, st *entity.Settlement) error {
	if err := t.fail("InsertSettlement"); err != nil {
		return err
	}
	if _, ok := t.state.settlements[st.OrderID]; ok {
		return repo.ErrDuplicate
	}
	for _, existing := range t.state.settlements {
		if existing.IdempotencyKey == st.IdempotencyKey {
			return repo.ErrDuplicate
		}
	}
	st.ID = t.state.id()
	if st.SettledAt.IsZero() {
		st.SettledAt = time.Now().UTC()
	}
	t.state.settlements[st.OrderID] = *st
	return nil
}

// ErrInjected is a convenience error for FailOn.
var ErrInjected = errors.New("injected failure")

// MustOrder returns an order or panics; for test setup only.
func (s *Store) MustOrder(id int64) entity.Order {
	o, err := s.GetByID(context.Background(), id)
	if err != nil {
		panic(fmt.Sprintf("order %d: %v", id, err))
	}
	return *o
}

var _ repo.Tx = (*tx)(nil)
