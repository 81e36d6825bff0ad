package order

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/cache"
	"github.com/Additional-Code/tableside/internal/messaging"
	"github.com/Additional-Code/tableside/internal/service/message"
	ordersvc "github.com/Additional-Code/tableside/internal/service/order"
	"github.com/Additional-Code/tableside/internal/service/settlement"
	"github.com/Additional-Code/tableside/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/tableside/worker/order")

// Module registers order and settlement handlers with the worker engine.
var Module = fx.Module("worker_order",
	fx.Provide(
		NewHandlers,
		fx.Annotate(
			func(h *Handlers) worker.HandlerRegistration { return h.Placed() },
			fx.ResultTags(`group:"worker.handlers"`),
		),
		fx.Annotate(
			func(h *Handlers) worker.HandlerRegistration { return h.ProofSubmitted() },
			fx.ResultTags(`group:"worker.handlers"`),
		),
		fx.Annotate(
			func(h *Handlers) worker.HandlerRegistration { return h.SettlementCompleted() },
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// Handlers reacts to order lifecycle events consumed from the bus.
type Handlers struct {
	notifier message.Notifier
	cache    cache.Store
	logger   *zap.Logger
}

// NewHandlers constructs the order event handlers.
func NewHandlers(notifier message.Notifier, c cache.Store, logger *zap.Logger) *Handlers {
	if c == nil {
		c = cache.NewNoop()
	}
	return &Handlers{notifier: notifier, cache: c, logger: logger}
}

// Placed logs new orders for the audit trail.
func (h *Handlers) Placed() worker.HandlerRegistration {
	return worker.HandlerRegistration{
		EventType: messaging.EventOrderPlaced,
		Handler: traced("worker.orders.placed", func(ctx context.Context, env messaging.Envelope) error {
			var event ordersvc.PlacedEvent
			if err := env.Decode(&event); err != nil {
				return err
			}
			h.logger.Info("order placed",
				zap.Int64("order_id", event.ID),
				zap.String("number", event.Number),
				zap.Int64("user_id", event.UserID),
				zap.String("total", event.Total),
			)
			return nil
		}),
	}
}

// ProofSubmitted acknowledges a payment proof to the customer.
func (h *Handlers) ProofSubmitted() worker.HandlerRegistration {
	return worker.HandlerRegistration{
		EventType: messaging.EventPaymentSubmitted,
		Handler: traced("worker.orders.proof_submitted", func(ctx context.Context, env messaging.Envelope) error {
			var event ordersvc.ProofSubmittedEvent
			if err := env.Decode(&event); err != nil {
				return err
			}
			if h.notifier == nil {
				return nil
			}
			text := fmt.Sprintf("We received your %s payment of %s (ref %s). A staff member will validate it shortly.",
				event.Method, event.Amount, event.ReferenceCode)
			_, err := h.notifier.Notify(ctx, event.UserID, text, fmt.Sprintf("/orders/%d", event.OrderID))
			return err
		}),
	}
}

// SettlementCompleted drops cached inventory snapshots touched by a settlement.
func (h *Handlers) SettlementCompleted() worker.HandlerRegistration {
	return worker.HandlerRegistration{
		EventType: messaging.EventSettlementCompleted,
		Handler: traced("worker.settlement.completed", func(ctx context.Context, env messaging.Envelope) error {
			var event settlement.CompletedEvent
			if err := env.Decode(&event); err != nil {
				return err
			}
			for _, d := range event.Deductions {
				if err := h.cache.Delete(ctx, cache.InventoryKey(d.InventoryItemID)); err != nil {
					h.logger.Warn("inventory cache invalidation failed",
						zap.Int64("inventory_item_id", d.InventoryItemID), zap.Error(err))
				}
			}
			h.logger.Info("settlement completed",
				zap.Int64("order_id", event.OrderID),
				zap.Int64("worker_id", event.WorkerID),
				zap.Int("deductions", len(event.Deductions)),
			)
			return nil
		}),
	}
}

func traced(name string, fn func(context.Context, messaging.Envelope) error) messaging.Handler {
	return func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, name, trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		env, err := messaging.DecodeEnvelope(msg)
		if err == nil {
			err = fn(ctx, env)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler failed")
		}
		return err
	}
}
