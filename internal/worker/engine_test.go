package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/messaging"
)

type stubClient struct{}

func (stubClient) Publish(context.Context, []byte, []byte, map[string]string) error { return nil }
func (stubClient) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}
func (stubClient) Topic() string { return "test" }

func newEngine(t *testing.T, regs []HandlerRegistration, jobs []Job) *Engine {
	t.Helper()
	cfg := config.Config{}
	cfg.Messaging.Workers.Enabled = true
	return NewEngine(Params{
		Client:        stubClient{},
		Logger:        zaptest.NewLogger(t),
		Config:        cfg,
		Registrations: regs,
		Jobs:          jobs,
	})
}

func TestDispatchRoutesByHeader(t *testing.T) {
	var hits int32
	engine := newEngine(t, []HandlerRegistration{{
		EventType: messaging.EventSettlementCompleted,
		Handler: func(context.Context, messaging.Message) error {
			atomic.AddInt32(&hits, 1)
			return nil
		},
	}}, nil)

	msg := messaging.Message{Headers: map[string]string{messaging.HeaderEventType: messaging.EventSettlementCompleted}}
	require.NoError(t, engine.Dispatch(context.Background(), msg))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	other := messaging.Message{Headers: map[string]string{messaging.HeaderEventType: messaging.EventOrderPlaced}}
	require.NoError(t, engine.Dispatch(context.Background(), other))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestDispatchFallsBackToEnvelope(t *testing.T) {
	boom := errors.New("boom")
	engine := newEngine(t, []HandlerRegistration{{
		EventType: messaging.EventReservationDissolved,
		Handler:   func(context.Context, messaging.Message) error { return boom },
	}}, nil)

	env, err := messaging.NewEnvelope(messaging.EventReservationDissolved, "reservation-1", map[string]int{"id": 1})
	require.NoError(t, err)
	body := []byte(`{"event_id":"` + env.EventID + `","event_type":"reservation.dissolved","payload":{}}`)

	err = engine.Dispatch(context.Background(), messaging.Message{Value: body})
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, engine.Dispatch(context.Background(), messaging.Message{Value: []byte("garbage")}))
}

func TestJobsRunUntilStopped(t *testing.T) {
	var runs int32
	engine := newEngine(t, nil, []Job{{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	}, {Name: "ignored", Interval: 0, Run: func(context.Context) error { return nil }}})
	require.Len(t, engine.jobs, 1)

	require.NoError(t, engine.start(context.Background()))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, engine.stop(ctx))
}
