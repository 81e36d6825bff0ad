// Package settlement validates customer payments. A settlement marks the
// order paid, completes its transaction and payment record and deducts
// stock for every line in a single database transaction.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/cache"
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/messaging"
	"github.com/Additional-Code/tableside/internal/observability"
	repo "github.com/Additional-Code/tableside/internal/repository/order"
	"github.com/Additional-Code/tableside/internal/service/message"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/tableside/service/settlement")

const (
	outcomeSettled  = "settled"
	outcomeReplayed = "replayed"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// Store runs a unit of work against the order tables.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx) error) error
}

// Input carries a settlement request.
type Input struct {
	OrderID        int64
	UserID         int64
	WorkerID       int64
	Message        string
	IdempotencyKey string
}

// Result describes a settled order.
type Result struct {
	Settlement entity.Settlement
	Order      entity.Order
	Deducted   []Deduction
	Replayed   bool
}

// Deduction is one stock movement applied by a settlement.
type Deduction struct {
	InventoryItemID int64 `json:"inventory_item_id"`
	Quantity        int   `json:"quantity"`
}

// CompletedEvent is published after a settlement commits.
type CompletedEvent struct {
	OrderID    int64       `json:"order_id"`
	OrderNo    string      `json:"order_number"`
	UserID     int64       `json:"user_id"`
	WorkerID   int64       `json:"worker_id"`
	Total      string      `json:"total"`
	Deductions []Deduction `json:"deductions"`
	SettledAt  time.Time   `json:"settled_at"`
}

// RejectedEvent is published after a payment proof is rejected.
type RejectedEvent struct {
	OrderID  int64  `json:"order_id"`
	UserID   int64  `json:"user_id"`
	WorkerID int64  `json:"worker_id"`
	Reason   string `json:"reason"`
}

// Service settles and rejects order payments.
type Service struct {
	store     Store
	notifier  message.Notifier
	cache     cache.Store
	publisher messaging.Client
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Notifier   message.Notifier
	Cache      cache.Store
	Publisher  messaging.Client
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return New(p.Repository, p.Notifier, p.Cache, p.Publisher, p.Metrics, p.Logger)
}

// New builds a Service from its collaborators. Publisher and metrics may be nil.
func New(store Store, notifier message.Notifier, c cache.Store, publisher messaging.Client, metrics *observability.Metrics, logger *zap.Logger) *Service {
	if c == nil {
		c = cache.NewNoop()
	}
	return &Service{
		store:     store,
		notifier:  notifier,
		cache:     c,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Key returns the idempotency key every settlement of orderID carries.
func Key(orderID int64) string {
	return fmt.Sprintf("settlement:order:%d", orderID)
}

// Settle validates the pending payment of an order. Calling it again for an
// order that is already settled returns the stored settlement with Replayed
// set and performs no writes.
func (s *Service) Settle(ctx context.Context, in Input) (*Result, error) {
	switch {
	case in.OrderID <= 0:
		return nil, errorbank.BadRequest("order_id is required")
	case in.UserID <= 0:
		return nil, errorbank.BadRequest("user_id is required")
	case in.WorkerID <= 0:
		return nil, errorbank.Unauthorized("worker identity is required")
	}
	key := Key(in.OrderID)
	if in.IdempotencyKey != "" && in.IdempotencyKey != key {
		return nil, errorbank.BadRequest("idempotency key does not match order",
			errorbank.WithDetail("expected", key))
	}

	ctx, span := serviceTracer.Start(ctx, "SettlementService.Settle", trace.WithAttributes(
		attribute.Int64("order.id", in.OrderID),
		attribute.Int64("worker.id", in.WorkerID),
	))
	defer span.End()
	started := s.now()

	var res Result
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		order, err := tx.LockOrder(ctx, in.OrderID)
		if err != nil {
			return err
		}

		existing, err := tx.FindSettlement(ctx, in.OrderID)
		switch {
		case err == nil:
			res = Result{Settlement: *existing, Order: *order, Replayed: true}
			return nil
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}

		if order.UserID != in.UserID {
			return errorbank.Unprocessable("order does not belong to user",
				errorbank.WithDetail("order_id", in.OrderID))
		}
		if order.PaymentStatus != entity.PaymentPendingValidation {
			return errorbank.Unprocessable("order is not awaiting payment validation",
				errorbank.WithDetail("payment_status", order.PaymentStatus))
		}

		worker := in.WorkerID
		if err := tx.SetPaymentStatus(ctx, order.ID, entity.PaymentPendingValidation, entity.PaymentPaid, &worker); err != nil {
			return err
		}
		n, err := tx.SetTransactionStatus(ctx, order.ID, entity.RecordPending, entity.RecordCompleted)
		if err != nil {
			return err
		}
		if n == 0 {
			return errorbank.Unprocessable("order has no pending transaction")
		}
		if err := tx.SetPaymentRecordStatus(ctx, order.ID, entity.RecordPending, entity.RecordCompleted); err != nil {
			if errors.Is(err, repo.ErrStaleState) {
				return errorbank.Unprocessable("order has no pending payment record")
			}
			return err
		}

		items, err := tx.OrderItems(ctx, order.ID)
		if err != nil {
			return err
		}
		deductions := make([]Deduction, 0, len(items))
		for _, item := range items {
			if err := tx.DeductStock(ctx, order.ID, item.InventoryItemID, item.Quantity); err != nil {
				if errors.Is(err, repo.ErrInsufficientStock) {
					return errorbank.Conflict("insufficient stock",
						errorbank.WithDetail("inventory_item_id", item.InventoryItemID),
						errorbank.WithDetail("requested", item.Quantity))
				}
				return err
			}
			deductions = append(deductions, Deduction{InventoryItemID: item.InventoryItemID, Quantity: item.Quantity})
		}

		settlement := &entity.Settlement{
			OrderID:        order.ID,
			IdempotencyKey: key,
			WorkerID:       in.WorkerID,
			Message:        in.Message,
			SettledAt:      s.now().UTC(),
		}
		if err := tx.InsertSettlement(ctx, settlement); err != nil {
			return err
		}

		order.PaymentStatus = entity.PaymentPaid
		order.CreatedBy = &worker
		order.Items = items
		res = Result{Settlement: *settlement, Order: *order, Deducted: deductions}
		return nil
	})
	elapsed := s.now().Sub(started).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settlement failed")
		s.metrics.RecordSettlement(ctx, outcomeFailed, elapsed)
		return nil, s.translate(err)
	}

	if res.Replayed {
		span.SetAttributes(attribute.Bool("settlement.replayed", true))
		s.metrics.RecordSettlement(ctx, outcomeReplayed, elapsed)
		return &res, nil
	}

	s.metrics.RecordSettlement(ctx, outcomeSettled, elapsed)
	units := 0
	for _, d := range res.Deducted {
		units += d.Quantity
	}
	s.metrics.RecordStockDeducted(ctx, units)
	s.afterSettle(ctx, &res, in)
	return &res, nil
}

// afterSettle runs side effects that must not undo a committed settlement.
func (s *Service) afterSettle(ctx context.Context, res *Result, in Input) {
	s.invalidate(ctx, res.Order.ID)
	for _, d := range res.Deducted {
		if err := s.cache.Delete(ctx, cache.InventoryKey(d.InventoryItemID)); err != nil {
			s.logger.Warn("inventory cache invalidation failed",
				zap.Int64("inventory_item_id", d.InventoryItemID), zap.Error(err))
		}
	}

	msg := in.Message
	if msg == "" {
		msg = fmt.Sprintf("Your payment for order %s has been validated.", res.Order.Number)
	}
	if s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, res.Order.UserID, msg, fmt.Sprintf("/orders/%d", res.Order.ID)); err != nil {
			s.logger.Warn("settlement notification failed", zap.Int64("order_id", res.Order.ID), zap.Error(err))
		}
	}

	event := CompletedEvent{
		OrderID:    res.Order.ID,
		OrderNo:    res.Order.Number,
		UserID:     res.Order.UserID,
		WorkerID:   in.WorkerID,
		Total:      res.Order.Total.StringFixed(2),
		Deductions: res.Deducted,
		SettledAt:  res.Settlement.SettledAt,
	}
	if err := messaging.PublishEvent(ctx, s.publisher, messaging.EventSettlementCompleted, orderKey(res.Order.ID), event); err != nil {
		s.logger.Error("publish settlement completed", zap.Int64("order_id", res.Order.ID), zap.Error(err))
	}

	s.logger.Info("order settled",
		zap.Int64("order_id", res.Order.ID),
		zap.Int64("worker_id", in.WorkerID),
		zap.Int("lines", len(res.Deducted)),
	)
}

// Reject sends a pending payment back to Unpaid so the customer can submit a
// new proof.
func (s *Service) Reject(ctx context.Context, orderID, workerID int64, reason string) (*entity.Order, error) {
	if orderID <= 0 {
		return nil, errorbank.BadRequest("order_id is required")
	}
	if workerID <= 0 {
		return nil, errorbank.Unauthorized("worker identity is required")
	}
	ctx, span := serviceTracer.Start(ctx, "SettlementService.Reject", trace.WithAttributes(attribute.Int64("order.id", orderID)))
	defer span.End()
	started := s.now()

	var order *entity.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.PaymentStatus != entity.PaymentPendingValidation {
			return errorbank.Unprocessable("order is not awaiting payment validation",
				errorbank.WithDetail("payment_status", order.PaymentStatus))
		}
		if err := tx.SetPaymentStatus(ctx, orderID, entity.PaymentPendingValidation, entity.PaymentUnpaid, nil); err != nil {
			return err
		}
		n, err := tx.SetTransactionStatus(ctx, orderID, entity.RecordPending, entity.RecordRejected)
		if err != nil {
			return err
		}
		if n == 0 {
			return errorbank.Unprocessable("order has no pending transaction")
		}
		if err := tx.SetPaymentRecordStatus(ctx, orderID, entity.RecordPending, entity.RecordRejected); err != nil {
			if errors.Is(err, repo.ErrStaleState) {
				return errorbank.Unprocessable("order has no pending payment record")
			}
			return err
		}
		order.PaymentStatus = entity.PaymentUnpaid
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reject failed")
		return nil, s.translate(err)
	}
	s.metrics.RecordSettlement(ctx, outcomeRejected, s.now().Sub(started).Seconds())

	s.invalidate(ctx, orderID)
	msg := fmt.Sprintf("Your payment for order %s was rejected.", order.Number)
	if reason != "" {
		msg = fmt.Sprintf("%s Reason: %s", msg, reason)
	}
	if s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, order.UserID, msg, fmt.Sprintf("/orders/%d", orderID)); err != nil {
			s.logger.Warn("rejection notification failed", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}
	event := RejectedEvent{OrderID: orderID, UserID: order.UserID, WorkerID: workerID, Reason: reason}
	if err := messaging.PublishEvent(ctx, s.publisher, messaging.EventPaymentRejected, orderKey(orderID), event); err != nil {
		s.logger.Error("publish payment rejected", zap.Int64("order_id", orderID), zap.Error(err))
	}
	return order, nil
}

func (s *Service) invalidate(ctx context.Context, orderID int64) {
	if err := s.cache.Delete(ctx, cache.OrderKey(orderID)); err != nil {
		s.logger.Warn("orders cache invalidation failed", zap.Int64("order_id", orderID), zap.Error(err))
	}
}

func (s *Service) translate(err error) error {
	var appErr *errorbank.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("order not found")
	case errors.Is(err, repo.ErrStaleState):
		return errorbank.Conflict("order changed concurrently, retry")
	case errors.Is(err, repo.ErrDuplicate):
		return errorbank.Conflict("order already settled")
	default:
		return errorbank.Internal("failed to settle order", errorbank.WithCause(err))
	}
}

func orderKey(id int64) string {
	return fmt.Sprintf("order-%d", id)
}
