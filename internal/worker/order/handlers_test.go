package order

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/tableside/internal/cache"
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/messaging"
	ordersvc "github.com/Additional-Code/tableside/internal/service/order"
	"github.com/Additional-Code/tableside/internal/service/settlement"
)

type notified struct {
	userID int64
	text   string
	link   string
}

type fakeNotifier struct{ sent []notified }

func (f *fakeNotifier) Notify(_ context.Context, userID int64, text, link string) (*entity.Notification, error) {
	f.sent = append(f.sent, notified{userID, text, link})
	return &entity.Notification{UserID: userID, Message: text, Link: link}, nil
}

type deletes struct{ keys []string }

func (d *deletes) Get(context.Context, string) ([]byte, error) { return nil, nil }
func (d *deletes) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}
func (d *deletes) Delete(_ context.Context, key string) error {
	d.keys = append(d.keys, key)
	return nil
}

func encode(t *testing.T, eventType string, payload any) messaging.Message {
	t.Helper()
	env, err := messaging.NewEnvelope(eventType, "order:1", payload)
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return messaging.Message{Value: body, Headers: map[string]string{messaging.HeaderEventType: eventType}}
}

func TestProofSubmittedNotifiesCustomer(t *testing.T) {
	n := &fakeNotifier{}
	h := NewHandlers(n, nil, zaptest.NewLogger(t))
	reg := h.ProofSubmitted()
	assert.Equal(t, messaging.EventPaymentSubmitted, reg.EventType)

	err := reg.Handler(context.Background(), encode(t, reg.EventType, ordersvc.ProofSubmittedEvent{
		OrderID: 7, UserID: 3, Method: "gcash", Amount: "250.00", ReferenceCode: "PAY-1",
	}))
	require.NoError(t, err)
	require.Len(t, n.sent, 1)
	assert.Equal(t, int64(3), n.sent[0].userID)
	assert.Equal(t, "/orders/7", n.sent[0].link)
	assert.Contains(t, n.sent[0].text, "PAY-1")
}

func TestSettlementCompletedInvalidatesInventory(t *testing.T) {
	store := &deletes{}
	h := NewHandlers(nil, store, zaptest.NewLogger(t))
	reg := h.SettlementCompleted()

	err := reg.Handler(context.Background(), encode(t, reg.EventType, settlement.CompletedEvent{
		OrderID:    1,
		Deductions: []settlement.Deduction{{InventoryItemID: 4, Quantity: 2}, {InventoryItemID: 9, Quantity: 1}},
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{cache.InventoryKey(4), cache.InventoryKey(9)}, store.keys)
}

func TestHandlersRejectMalformedPayload(t *testing.T) {
	h := NewHandlers(nil, nil, zaptest.NewLogger(t))
	err := h.Placed().Handler(context.Background(), messaging.Message{Value: []byte("{")})
	assert.Error(t, err)
}
