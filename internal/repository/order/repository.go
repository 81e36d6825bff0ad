package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tableside/internal/database"
	"github.com/Additional-Code/tableside/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/tableside/repository/order")

var (
	// ErrNotFound is returned when an order, settlement or payment row is missing.
	ErrNotFound = errors.New("order not found")
	// ErrStaleState is returned when a conditional status update matched no row.
	ErrStaleState = errors.New("order state changed concurrently")
	// ErrInsufficientStock is returned when a deduction would drive stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

// Filter narrows order listings.
type Filter struct {
	UserID        int64
	PaymentStatus entity.PaymentStatus
	Limit         int
	Offset        int
}

// Repository encapsulates read/write access for orders and their payments.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// InTx runs fn inside a single database transaction on the writer. Any error
// returned by fn rolls back every write made through tx.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, btx bun.Tx) error {
		return fn(ctx, &txStore{db: btx, lock: database.SupportsRowLocks(btx)})
	})
}

// Create persists an order with its items atomically.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.number", order.Number)))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return err
		}
		if len(order.Items) == 0 {
			return nil
		}
		for i := range order.Items {
			order.Items[i].OrderID = order.ID
		}
		_, err := tx.NewInsert().Model(&order.Items).Exec(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
	}
	return err
}

// GetByID fetches an order and its items using the read replica when available.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order := new(entity.Order)
	err := r.reader.NewSelect().Model(order).Relation("Items").Where("?TableAlias.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

// List returns orders newest first.
func (r *Repository) List(ctx context.Context, f Filter) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.List")
	defer span.End()

	var orders []entity.Order
	q := r.reader.NewSelect().Model(&orders).Relation("Items").OrderExpr("?TableAlias.id DESC")
	if f.UserID > 0 {
		q = q.Where("?TableAlias.user_id = ?", f.UserID)
	}
	if f.PaymentStatus != "" {
		q = q.Where("?TableAlias.payment_status = ?", f.PaymentStatus)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if err := q.Scan(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// UpdateOrderStatus moves the kitchen status only if it still equals from.
func (r *Repository) UpdateOrderStatus(ctx context.Context, id int64, from, to entity.OrderStatus) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.UpdateOrderStatus", trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.status.to", string(to)),
	))
	defer span.End()

	res, err := r.writer.NewUpdate().Model((*entity.Order)(nil)).
		Set("order_status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("order_status = ?", from).
		Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return err
	}
	return expectOne(res)
}

// Transactions lists the payment claims submitted for an order.
func (r *Repository) Transactions(ctx context.Context, orderID int64) ([]entity.Transaction, error) {
	var txs []entity.Transaction
	err := r.reader.NewSelect().Model(&txs).Where("order_id = ?", orderID).OrderExpr("id DESC").Scan(ctx)
	return txs, err
}

// PaymentRecord returns the payment record for an order.
func (r *Repository) PaymentRecord(ctx context.Context, orderID int64) (*entity.PaymentRecord, error) {
	rec := new(entity.PaymentRecord)
	err := r.reader.NewSelect().Model(rec).Where("order_id = ?", orderID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// Settlement returns the settlement for an order.
func (r *Repository) Settlement(ctx context.Context, orderID int64) (*entity.Settlement, error) {
	s := new(entity.Settlement)
	err := r.reader.NewSelect().Model(s).Where("order_id = ?", orderID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleState
	}
	return nil
}
