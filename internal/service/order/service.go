package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/auth"
	"github.com/Additional-Code/tableside/internal/cache"
	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/messaging"
	invrepo "github.com/Additional-Code/tableside/internal/repository/inventory"
	repo "github.com/Additional-Code/tableside/internal/repository/order"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/tableside/service/order")

const maxPageSize = 100

// Store is the order persistence the service relies on.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx) error) error
	Create(ctx context.Context, order *entity.Order) error
	GetByID(ctx context.Context, id int64) (*entity.Order, error)
	List(ctx context.Context, f repo.Filter) ([]entity.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, from, to entity.OrderStatus) error
	Transactions(ctx context.Context, orderID int64) ([]entity.Transaction, error)
}

// Catalog prices order lines.
type Catalog interface {
	GetMany(ctx context.Context, ids []int64) (map[int64]entity.InventoryItem, error)
}

// Line is a requested quantity of one inventory item.
type Line struct {
	InventoryItemID int64
	Quantity        int
}

// ProofInput is a customer's claim that an order has been paid.
type ProofInput struct {
	OrderID       int64
	UserID        int64
	Method        entity.PaymentMethod
	Amount        decimal.Decimal
	ReferenceCode string
	ProofImage    string
}

// Service encapsulates business logic around orders.
type Service struct {
	store     Store
	catalog   Catalog
	cache     cache.Store
	cacheTTL  time.Duration
	logger    *zap.Logger
	publisher messaging.Client
	now       func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Inventory  *invrepo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
	Publisher  messaging.Client
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return New(p.Repository, p.Inventory, p.Cache, p.Config.Cache.DefaultTTL, p.Publisher, p.Logger)
}

// New builds a Service from its collaborators.
func New(store Store, catalog Catalog, c cache.Store, ttl time.Duration, publisher messaging.Client, logger *zap.Logger) *Service {
	if c == nil {
		c = cache.NewNoop()
	}
	return &Service{
		store:     store,
		catalog:   catalog,
		cache:     c,
		cacheTTL:  ttl,
		logger:    logger,
		publisher: publisher,
		now:       time.Now,
	}
}

// Checkout prices the requested lines from inventory and places a new unpaid order.
func (s *Service) Checkout(ctx context.Context, userID int64, lines []Line) (*entity.Order, error) {
	if userID <= 0 {
		return nil, errorbank.Unauthorized("user identity is required")
	}
	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}
	ctx, span := serviceTracer.Start(ctx, "OrderService.Checkout", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int("order.lines", len(merged)),
	))
	defer span.End()

	ids := make([]int64, 0, len(merged))
	for _, l := range merged {
		ids = append(ids, l.InventoryItemID)
	}
	catalog, err := s.catalog.GetMany(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("failed to load inventory", errorbank.WithCause(err))
	}

	now := s.now().UTC()
	order := &entity.Order{
		Number:        newOrderNumber(now),
		UserID:        userID,
		OrderStatus:   entity.OrderPending,
		PaymentStatus: entity.PaymentUnpaid,
		Total:         decimal.Zero,
		OrderDate:     now,
		UpdatedAt:     now,
	}
	for _, l := range merged {
		item, ok := catalog[l.InventoryItemID]
		if !ok || item.Archived {
			return nil, errorbank.NotFound("inventory item not found", errorbank.WithDetail("inventory_item_id", l.InventoryItemID))
		}
		if item.Available() < l.Quantity {
			return nil, errorbank.Conflict("insufficient stock",
				errorbank.WithDetail("inventory_item_id", l.InventoryItemID),
				errorbank.WithDetail("available", item.Available()))
		}
		order.Items = append(order.Items, entity.OrderItem{
			InventoryItemID: item.ID,
			Quantity:        l.Quantity,
			UnitPrice:       item.Price,
		})
		order.Total = order.Total.Add(item.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	if err := s.store.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}
	s.storeInCache(ctx, order)

	s.publish(ctx, messaging.EventOrderPlaced, order.ID, PlacedEvent{
		ID:     order.ID,
		Number: order.Number,
		UserID: order.UserID,
		Total:  order.Total.StringFixed(2),
		Lines:  len(order.Items),
	})
	return order, nil
}

// SubmitProof records a payment claim and moves the order to PendingValidation.
func (s *Service) SubmitProof(ctx context.Context, in ProofInput) (*entity.Transaction, error) {
	switch {
	case in.OrderID <= 0:
		return nil, errorbank.BadRequest("order_id is required")
	case !in.Method.Valid():
		return nil, errorbank.BadRequest("unsupported payment method", errorbank.WithDetail("method", in.Method))
	case !in.Amount.IsPositive():
		return nil, errorbank.BadRequest("amount must be positive")
	case in.Method == entity.MethodGCash && strings.TrimSpace(in.ProofImage) == "":
		return nil, errorbank.BadRequest("proof_image is required for gcash payments")
	}
	ref := strings.TrimSpace(in.ReferenceCode)
	if ref == "" {
		ref = "PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}

	ctx, span := serviceTracer.Start(ctx, "OrderService.SubmitProof", trace.WithAttributes(attribute.Int64("order.id", in.OrderID)))
	defer span.End()

	var txn *entity.Transaction
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		order, err := tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if order.UserID != in.UserID {
			return errorbank.Forbidden("order belongs to another user")
		}
		if order.OrderStatus == entity.OrderCancelled {
			return errorbank.Unprocessable("order is cancelled")
		}
		if order.PaymentStatus != entity.PaymentUnpaid {
			return errorbank.Unprocessable("order is not awaiting payment",
				errorbank.WithDetail("payment_status", order.PaymentStatus))
		}
		if !in.Amount.Equal(order.Total) {
			return errorbank.Unprocessable("amount does not match order total",
				errorbank.WithDetail("total", order.Total.StringFixed(2)))
		}

		now := s.now().UTC()
		txn = &entity.Transaction{
			OrderID:       order.ID,
			UserID:        in.UserID,
			Method:        in.Method,
			Status:        entity.RecordPending,
			Amount:        in.Amount,
			ReferenceCode: ref,
			ProofImage:    strings.TrimSpace(in.ProofImage),
			CreatedAt:     now,
		}
		if err := tx.InsertTransaction(ctx, txn); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return errorbank.Conflict("reference code already used")
			}
			return err
		}
		if err := tx.UpsertPaymentRecord(ctx, &entity.PaymentRecord{
			OrderID: order.ID,
			UserID:  order.UserID,
			Status:  entity.RecordPending,
		}); err != nil {
			return err
		}
		return tx.SetPaymentStatus(ctx, order.ID, entity.PaymentUnpaid, entity.PaymentPendingValidation, nil)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit proof failed")
		return nil, translate(err)
	}

	s.invalidate(ctx, in.OrderID)
	s.publish(ctx, messaging.EventPaymentSubmitted, in.OrderID, ProofSubmittedEvent{
		OrderID:       in.OrderID,
		UserID:        in.UserID,
		Method:        string(in.Method),
		Amount:        in.Amount.StringFixed(2),
		ReferenceCode: ref,
	})
	return txn, nil
}

// Get retrieves an order by id, consulting cache when available. Customers
// only see their own orders.
func (s *Service) Get(ctx context.Context, viewer auth.Principal, id int64) (*entity.Order, error) {
	ctx, span := serviceTracer.Start(ctx, "OrderService.Get", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer span.End()

	order, err := cache.GetJSON[entity.Order](ctx, s.cache, cache.OrderKey(id))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("orders cache read failed", zap.Int64("id", id), zap.Error(err))
		}
		order, err = s.store.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, errorbank.NotFound("order not found")
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "repository error")
			return nil, errorbank.Internal("failed to load order", errorbank.WithCause(err))
		}
		s.storeInCache(ctx, order)
	}

	if !viewer.Role.Staff() && order.UserID != viewer.UserID {
		return nil, errorbank.NotFound("order not found")
	}
	return order, nil
}

// Payments lists the payment claims submitted for an order.
func (s *Service) Payments(ctx context.Context, viewer auth.Principal, id int64) ([]entity.Transaction, error) {
	if _, err := s.Get(ctx, viewer, id); err != nil {
		return nil, err
	}
	txs, err := s.store.Transactions(ctx, id)
	if err != nil {
		return nil, errorbank.Internal("failed to load payments", errorbank.WithCause(err))
	}
	return txs, nil
}

// ListMine returns the caller's orders newest first.
func (s *Service) ListMine(ctx context.Context, userID int64, limit, offset int) ([]entity.Order, error) {
	return s.List(ctx, repo.Filter{UserID: userID, Limit: limit, Offset: offset})
}

// List returns orders for staff dashboards.
func (s *Service) List(ctx context.Context, f repo.Filter) ([]entity.Order, error) {
	if f.Limit <= 0 || f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	orders, err := s.store.List(ctx, f)
	if err != nil {
		return nil, errorbank.Internal("failed to list orders", errorbank.WithCause(err))
	}
	return orders, nil
}

// UpdateStatus advances the kitchen status. Orders are only prepared once paid.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to entity.OrderStatus) (*entity.Order, error) {
	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if !order.OrderStatus.CanTransition(to) {
		return nil, errorbank.Unprocessable("invalid status transition",
			errorbank.WithDetail("from", order.OrderStatus),
			errorbank.WithDetail("to", to))
	}
	if to == entity.OrderPreparing && order.PaymentStatus != entity.PaymentPaid {
		return nil, errorbank.Unprocessable("order is not paid")
	}
	if to == entity.OrderCancelled {
		return nil, errorbank.Unprocessable("use cancel to cancel an order")
	}
	if err := s.store.UpdateOrderStatus(ctx, id, order.OrderStatus, to); err != nil {
		return nil, translate(err)
	}
	s.invalidate(ctx, id)
	order.OrderStatus = to
	return order, nil
}

// Cancel cancels an order the customer has not paid for yet.
func (s *Service) Cancel(ctx context.Context, userID, id int64) (*entity.Order, error) {
	var order *entity.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return errorbank.NotFound("order not found")
		}
		if order.OrderStatus != entity.OrderPending || order.PaymentStatus != entity.PaymentUnpaid {
			return errorbank.Unprocessable("only unpaid pending orders can be cancelled",
				errorbank.WithDetail("order_status", order.OrderStatus),
				errorbank.WithDetail("payment_status", order.PaymentStatus))
		}
		if err := tx.SetOrderStatus(ctx, id, entity.OrderPending, entity.OrderCancelled); err != nil {
			return err
		}
		order.OrderStatus = entity.OrderCancelled
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	s.invalidate(ctx, id)
	return order, nil
}

func (s *Service) publish(ctx context.Context, eventType string, orderID int64, payload any) {
	if err := messaging.PublishEvent(ctx, s.publisher, eventType, fmt.Sprintf("order-%d", orderID), payload); err != nil {
		s.logger.Error("publish order event", zap.String("event_type", eventType), zap.Int64("order_id", orderID), zap.Error(err))
	}
}

func (s *Service) storeInCache(ctx context.Context, order *entity.Order) {
	if err := cache.SetJSON(ctx, s.cache, cache.OrderKey(order.ID), order, s.cacheTTL); err != nil {
		s.logger.Warn("orders cache write failed", zap.Int64("id", order.ID), zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Delete(ctx, cache.OrderKey(id)); err != nil {
		s.logger.Warn("orders cache invalidation failed", zap.Int64("id", id), zap.Error(err))
	}
}

func mergeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, errorbank.BadRequest("order must contain at least one item")
	}
	qty := make(map[int64]int, len(lines))
	for _, l := range lines {
		if l.InventoryItemID <= 0 || l.Quantity <= 0 {
			return nil, errorbank.BadRequest("each item needs an inventory_item_id and a positive quantity")
		}
		qty[l.InventoryItemID] += l.Quantity
	}
	out := make([]Line, 0, len(qty))
	for id, q := range qty {
		out = append(out, Line{InventoryItemID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InventoryItemID < out[j].InventoryItemID })
	return out, nil
}

func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

func translate(err error) error {
	var appErr *errorbank.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("order not found")
	case errors.Is(err, repo.ErrStaleState):
		return errorbank.Conflict("order changed concurrently, retry")
	default:
		return errorbank.Internal("order operation failed", errorbank.WithCause(err))
	}
}

// PlacedEvent is emitted when a new order is persisted.
type PlacedEvent struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
	UserID int64  `json:"user_id"`
	Total  string `json:"total"`
	Lines  int    `json:"lines"`
}

// ProofSubmittedEvent is emitted when a customer submits proof of payment.
type ProofSubmittedEvent struct {
	OrderID       int64  `json:"order_id"`
	UserID        int64  `json:"user_id"`
	Method        string `json:"method"`
	Amount        string `json:"amount"`
	ReferenceCode string `json:"reference_code"`
}
