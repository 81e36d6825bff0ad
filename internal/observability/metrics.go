package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Additional-Code/tableside"

// Metrics holds the domain instruments recorded by services.
type Metrics struct {
	settlements          metric.Int64Counter
	settlementDuration   metric.Float64Histogram
	stockDeducted        metric.Int64Counter
	reservationsDissolve metric.Int64Counter
	realtimeConnections  metric.Int64UpDownCounter
}

// NewMetrics registers instruments on the global meter provider. The manager
// installs the real provider on start; until then the global delegates.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	settlements, err := meter.Int64Counter("tableside.settlements",
		metric.WithDescription("Settlement attempts by outcome"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("tableside.settlement.duration",
		metric.WithDescription("Time spent settling an order"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	deducted, err := meter.Int64Counter("tableside.inventory.deducted",
		metric.WithDescription("Units removed from stock by settlements"))
	if err != nil {
		return nil, err
	}
	dissolved, err := meter.Int64Counter("tableside.reservations.dissolved",
		metric.WithDescription("Reservations dissolved after expiry"))
	if err != nil {
		return nil, err
	}
	conns, err := meter.Int64UpDownCounter("tableside.realtime.connections",
		metric.WithDescription("Open websocket connections"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		settlements:          settlements,
		settlementDuration:   duration,
		stockDeducted:        deducted,
		reservationsDissolve: dissolved,
		realtimeConnections:  conns,
	}, nil
}

// RecordSettlement counts a settlement attempt and its latency.
func (m *Metrics) RecordSettlement(ctx context.Context, outcome string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.settlements.Add(ctx, 1, attrs)
	m.settlementDuration.Record(ctx, seconds, attrs)
}

// RecordStockDeducted counts units taken out of inventory.
func (m *Metrics) RecordStockDeducted(ctx context.Context, units int) {
	if m == nil || units <= 0 {
		return
	}
	m.stockDeducted.Add(ctx, int64(units))
}

// RecordReservationsDissolved counts reservations moved to Dissolve.
func (m *Metrics) RecordReservationsDissolved(ctx context.Context, n int, source string) {
	if m == nil || n <= 0 {
		return
	}
	m.reservationsDissolve.Add(ctx, int64(n), metric.WithAttributes(attribute.String("source", source)))
}

// RealtimeConnection tracks websocket connection open (+1) and close (-1).
func (m *Metrics) RealtimeConnection(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.realtimeConnections.Add(ctx, delta)
}
