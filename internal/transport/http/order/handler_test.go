package order

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/tableside/internal/dto"
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/repository/order/ordertest"
	service "github.com/Additional-Code/tableside/internal/service/order"
	"github.com/Additional-Code/tableside/internal/transport/http/middleware/middlewaretest"
)

type catalogStub map[int64]entity.InventoryItem

func (c catalogStub) GetMany(_ context.Context, ids []int64) (map[int64]entity.InventoryItem, error) {
	out := make(map[int64]entity.InventoryItem, len(ids))
	for _, id := range ids {
		if it, ok := c[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

const (
	customerID = int64(10)
	strangerID = int64(11)
	workerID   = int64(2)
)

type harness struct {
	e        *echo.Echo
	store    *ordertest.Store
	customer string
	stranger string
	worker   string
}

func setup(t *testing.T) *harness {
	t.Helper()
	catalog := catalogStub{
		1: {ID: 1, SKU: "SISIG", Price: decimal.NewFromInt(180), StockIn: 10},
		2: {ID: 2, SKU: "ICED-TEA", Price: decimal.RequireFromString("45.50"), StockIn: 1},
	}
	store := ordertest.New()
	guard := middlewaretest.New()
	e := echo.New()
	Register(e, guard.Guard, NewHandler(service.New(store, catalog, nil, 0, nil, zaptest.NewLogger(t))))
	return &harness{
		e:        e,
		store:    store,
		customer: guard.Token(t, customerID, entity.RoleClient),
		stranger: guard.Token(t, strangerID, entity.RoleClient),
		worker:   guard.Token(t, workerID, entity.RoleWorker),
	}
}

func (h *harness) checkout(t *testing.T) dto.OrderResponse {
	t.Helper()
	rec, env := middlewaretest.Do(t, h.e, http.MethodPost, "/orders", h.customer,
		`{"items":[{"inventory_item_id":1,"quantity":2},{"inventory_item_id":2,"quantity":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order dto.OrderResponse
	env.Decode(t, &order)
	return order
}

func path(id int64, suffix string) string {
	return "/orders/" + strconv.FormatInt(id, 10) + suffix
}

func TestCheckoutEndpoint(t *testing.T) {
	h := setup(t)

	order := h.checkout(t)
	assert.Equal(t, customerID, order.UserID)
	assert.Equal(t, "405.50", order.Total)
	assert.Equal(t, string(entity.PaymentUnpaid), order.PaymentStatus)
	assert.Len(t, order.Items, 2)

	rec, env := middlewaretest.Do(t, h.e, http.MethodPost, "/orders", h.customer, `{"items":[{"inventory_item_id":2,"quantity":5}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", env.Error.Kind)

	rec, _ = middlewaretest.Do(t, h.e, http.MethodPost, "/orders", h.customer, `{"items":[{"inventory_item_id":99,"quantity":1}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = middlewaretest.Do(t, h.e, http.MethodPost, "/orders", h.customer, `{"items":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = middlewaretest.Do(t, h.e, http.MethodPost, "/orders", "", `{"items":[]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitProofEndpointMapsErrors(t *testing.T) {
	h := setup(t)
	order := h.checkout(t)
	target := path(order.ID, "/payments")

	rec, env := middlewaretest.Do(t, h.e, http.MethodPost, target, h.customer, `{"method":"paypal","amount":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", env.Error.Kind)

	rec, _ = middlewaretest.Do(t, h.e, http.MethodPost, target, h.customer, `{"method":"cash","amount":"405.50"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = middlewaretest.Do(t, h.e, http.MethodPost, target, h.stranger, `{"method":"paypal","amount":"405.50"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = middlewaretest.Do(t, h.e, http.MethodPost, target, h.customer, `{"method":"paypal","amount":"400.00"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "unprocessable_entity", env.Error.Kind)

	rec, env = middlewaretest.Do(t, h.e, http.MethodPost, target, h.customer, `{"method":"paypal","amount":"405.50","reference_code":"PP-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var txn dto.TransactionResponse
	env.Decode(t, &txn)
	assert.Equal(t, "PP-1", txn.ReferenceCode)
	assert.Equal(t, string(entity.RecordPending), txn.Status)
	assert.Equal(t, entity.PaymentPendingValidation, h.store.MustOrder(order.ID).PaymentStatus)

	// A second proof for the same order is refused until staff reject the first.
	rec, _ = middlewaretest.Do(t, h.e, http.MethodPost, target, h.customer, `{"method":"paypal","amount":"405.50","reference_code":"PP-2"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, env = middlewaretest.Do(t, h.e, http.MethodGet, target, h.customer, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var txs []dto.TransactionResponse
	env.Decode(t, &txs)
	assert.Len(t, txs, 1)
}

func TestGetEndpointHidesOtherCustomersOrders(t *testing.T) {
	h := setup(t)
	order := h.checkout(t)

	rec, _ := middlewaretest.Do(t, h.e, http.MethodGet, path(order.ID, ""), h.customer, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = middlewaretest.Do(t, h.e, http.MethodGet, path(order.ID, ""), h.stranger, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = middlewaretest.Do(t, h.e, http.MethodGet, path(order.ID, ""), h.worker, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = middlewaretest.Do(t, h.e, http.MethodGet, "/orders/abc", h.customer, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStaffListEndpoint(t *testing.T) {
	h := setup(t)
	h.checkout(t)

	rec, _ := middlewaretest.Do(t, h.e, http.MethodGet, "/orders", h.customer, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := middlewaretest.Do(t, h.e, http.MethodGet, "/orders?payment_status=Unpaid", h.worker, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, env.Meta["count"])

	rec, _ = middlewaretest.Do(t, h.e, http.MethodGet, "/orders?payment_status=Refunded", h.worker, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = middlewaretest.Do(t, h.e, http.MethodGet, "/orders/mine", h.stranger, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, env.Meta["count"])
}

func TestStatusAndCancelEndpoints(t *testing.T) {
	h := setup(t)
	order := h.checkout(t)

	rec, _ := middlewaretest.Do(t, h.e, http.MethodPut, path(order.ID, "/status"), h.worker, `{"status":"Preparing"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "unpaid orders are not prepared")

	rec, _ = middlewaretest.Do(t, h.e, http.MethodPost, path(order.ID, "/cancel"), h.stranger, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := middlewaretest.Do(t, h.e, http.MethodPost, path(order.ID, "/cancel"), h.customer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled dto.OrderResponse
	env.Decode(t, &cancelled)
	assert.Equal(t, string(entity.OrderCancelled), cancelled.OrderStatus)

	rec, _ = middlewaretest.Do(t, h.e, http.MethodPost, path(order.ID, "/payments"), h.customer, `{"method":"paypal","amount":"405.50"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
