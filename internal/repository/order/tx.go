package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/Additional-Code/tableside/internal/database"
	"github.com/Additional-Code/tableside/internal/entity"
)

// Tx is the set of writes that must commit or roll back together when an
// order's payment state changes.
type Tx interface {
	// LockOrder loads the order and holds its row lock until commit.
	LockOrder(ctx context.Context, id int64) (*entity.Order, error)
	OrderItems(ctx context.Context, orderID int64) ([]entity.OrderItem, error)
	SetPaymentStatus(ctx context.Context, orderID int64, from, to entity.PaymentStatus, actor *int64) error
	SetOrderStatus(ctx context.Context, orderID int64, from, to entity.OrderStatus) error
	InsertTransaction(ctx context.Context, t *entity.Transaction) error
	// SetTransactionStatus moves every transaction of the order in state from to state to.
	SetTransactionStatus(ctx context.Context, orderID int64, from, to entity.RecordStatus) (int64, error)
	UpsertPaymentRecord(ctx context.Context, rec *entity.PaymentRecord) error
	SetPaymentRecordStatus(ctx context.Context, orderID int64, from, to entity.RecordStatus) error
	// DeductStock removes qty units of an item on behalf of an order and
	// records the movement. It fails with ErrInsufficientStock or ErrDuplicate.
	DeductStock(ctx context.Context, orderID, itemID int64, qty int) error
	FindSettlement(ctx context.Context, orderID int64) (*entity.Settlement, error)
	InsertSettlement(ctx context.Context, s *entity.Settlement) error
}

type txStore struct {
	db   bun.IDB
	lock bool
}

func (t *txStore) LockOrder(ctx context.Context, id int64) (*entity.Order, error) {
	order := new(entity.Order)
	q := t.db.NewSelect().Model(order).Where("id = ?", id)
	if t.lock {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (t *txStore) OrderItems(ctx context.Context, orderID int64) ([]entity.OrderItem, error) {
	var items []entity.OrderItem
	err := t.db.NewSelect().Model(&items).Where("order_id = ?", orderID).OrderExpr("id ASC").Scan(ctx)
	return items, err
}

func (t *txStore) SetPaymentStatus(ctx context.Context, orderID int64, from, to entity.PaymentStatus, actor *int64) error {
	q := t.db.NewUpdate().Model((*entity.Order)(nil)).
		Set("payment_status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", orderID).
		Where("payment_status = ?", from)
	if actor != nil {
		q = q.Set("created_by = ?", *actor)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (t *txStore) SetOrderStatus(ctx context.Context, orderID int64, from, to entity.OrderStatus) error {
	res, err := t.db.NewUpdate().Model((*entity.Order)(nil)).
		Set("order_status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", orderID).
		Where("order_status = ?", from).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (t *txStore) InsertTransaction(ctx context.Context, tr *entity.Transaction) error {
	now := time.Now().UTC()
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = now
	}
	tr.UpdatedAt = now
	_, err := t.db.NewInsert().Model(tr).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (t *txStore) SetTransactionStatus(ctx context.Context, orderID int64, from, to entity.RecordStatus) (int64, error) {
	res, err := t.db.NewUpdate().Model((*entity.Transaction)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("order_id = ?", orderID).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *txStore) UpsertPaymentRecord(ctx context.Context, rec *entity.PaymentRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	existing := new(entity.PaymentRecord)
	err := t.db.NewSelect().Model(existing).Where("order_id = ?", rec.OrderID).Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = t.db.NewInsert().Model(rec).Exec(ctx)
		return err
	case err != nil:
		return err
	}
	rec.ID = existing.ID
	_, err = t.db.NewUpdate().Model(rec).
		Column("status", "updated_at").
		WherePK().
		Exec(ctx)
	return err
}

func (t *txStore) SetPaymentRecordStatus(ctx context.Context, orderID int64, from, to entity.RecordStatus) error {
	res, err := t.db.NewUpdate().Model((*entity.PaymentRecord)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("order_id = ?", orderID).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (t *txStore) DeductStock(ctx context.Context, orderID, itemID int64, qty int) error {
	res, err := t.db.NewUpdate().Model((*entity.InventoryItem)(nil)).
		Set("stock_out = stock_out + ?", qty).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", itemID).
		Where("stock_in - stock_out >= ?", qty).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrInsufficientStock
	}

	oid := orderID
	movement := &entity.InventoryMovement{
		InventoryItemID: itemID,
		OrderID:         &oid,
		Kind:            entity.MovementDeduct,
		Quantity:        qty,
		CreatedAt:       time.Now().UTC(),
	}
	if _, err := t.db.NewInsert().Model(movement).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (t *txStore) FindSettlement(ctx context.Context, orderID int64) (*entity.Settlement, error) {
	s := new(entity.Settlement)
	err := t.db.NewSelect().Model(s).Where("order_id = ?", orderID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (t *txStore) InsertSettlement(ctx context.Context, s *entity.Settlement) error {
	if s.SettledAt.IsZero() {
		s.SettledAt = time.Now().UTC()
	}
	_, err := t.db.NewInsert().Model(s).Exec(ctx)
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}
