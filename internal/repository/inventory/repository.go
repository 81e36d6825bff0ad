package inventory

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

var repoTracer = otel.Tracer("github.com/Additional-Code/tableside/repository/inventory")

var (
	// ErrNotFound is returned when an inventory item is missing.
	ErrNotFound = errors.New("inventory item not found")
	// ErrDuplicateSKU is returned when the SKU is already taken.
	ErrDuplicateSKU = errors.New("sku already exists")
)

// Repository encapsulates access to inventory items and their ledger.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// Create inserts a new item.
func (r *Repository) Create(ctx context.Context, item *entity.InventoryItem) error {
	ctx, span := repoTracer.Start(ctx, "InventoryRepository.Create", trace.WithAttributes(attribute.String("inventory.sku", item.SKU)))
	defer span.End()

	_, err := r.writer.NewInsert().Model(item).Exec(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		if database.IsUniqueViolation(err) {
			return ErrDuplicateSKU
		}
	}
	return err
}

// GetByID loads one item.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.InventoryItem, error) {
	item := new(entity.InventoryItem)
	err := r.reader.NewSelect().Model(item).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// GetMany loads the given items keyed by id. Missing ids are simply absent.
func (r *Repository) GetMany(ctx context.Context, ids []int64) (map[int64]entity.InventoryItem, error) {
	out := make(map[int64]entity.InventoryItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []entity.InventoryItem
	if err := r.reader.NewSelect().Model(&items).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

// List returns items ordered by SKU, optionally including archived ones.
func (r *Repository) List(ctx context.Context, includeArchived bool) ([]entity.InventoryItem, error) {
	var items []entity.InventoryItem
	q := r.reader.NewSelect().Model(&items).OrderExpr("sku ASC")
	if !includeArchived {
		q = q.Where("archived = ?", false)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

// Restock adds qty to stock_in and records a restock movement atomically.
func (r *Repository) Restock(ctx context.Context, id int64, qty int) (*entity.InventoryItem, error) {
	ctx, span := repoTracer.Start(ctx, "InventoryRepository.Restock", trace.WithAttributes(
		attribute.Int64("inventory.id", id),
		attribute.Int("inventory.qty", qty),
	))
	defer span.End()

	item := new(entity.InventoryItem)
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		res, err := tx.NewUpdate().Model((*entity.InventoryItem)(nil)).
			Set("stock_in = stock_in + ?", qty).
			Set("updated_at = ?", now).
			Where("id = ?", id).
			Where("archived = ?", false).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrNotFound
		}
		movement := &entity.InventoryMovement{
			InventoryItemID: id,
			Kind:            entity.MovementRestock,
			Quantity:        qty,
			CreatedAt:       now,
		}
		if _, err := tx.NewInsert().Model(movement).Exec(ctx); err != nil {
			return err
		}
		return tx.NewSelect().Model(item).Where("id = ?", id).Scan(ctx)
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "restock failed")
		}
		return nil, err
	}
	return item, nil
}

// Archive hides an item from the menu without deleting it.
func (r *Repository) Archive(ctx context.Context, id int64) error {
	res, err := r.writer.NewUpdate().Model((*entity.InventoryItem)(nil)).
		Set("archived = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Movements lists ledger rows for an item, newest first.
func (r *Repository) Movements(ctx context.Context, id int64, limit int) ([]entity.InventoryMovement, error) {
	var rows []entity.InventoryMovement
	q := r.reader.NewSelect().Model(&rows).Where("inventory_item_id = ?", id).OrderExpr("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Scan(ctx)
	return rows, err
}
