package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tableside/pkg/errorbank"
)

func newContext() (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec), rec
}

func TestBuildSuccessEnvelope(t *testing.T) {
	c, rec := newContext()
	err := New(c).WithStatus(http.StatusCreated).WithHeader("Idempotency-Key", "k1").
		WithData(map[string]int{"id": 7}).WithMeta("count", 1).Build()
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "k1", rec.Header().Get("Idempotency-Key"))
	assert.JSONEq(t, `{"success":true,"data":{"id":7},"meta":{"count":1}}`, rec.Body.String())
}

func TestBuildErrorUsesKindStatus(t *testing.T) {
	c, rec := newContext()
	err := New(c).WithError(errorbank.Conflict("insufficient stock", errorbank.WithDetail("inventory_item_id", 3))).Build()
	require.NoError(t, err)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":{"kind":"conflict","message":"insufficient stock","details":{"inventory_item_id":3}}}`, rec.Body.String())
}

func TestBuildErrorHidesUnexpectedCause(t *testing.T) {
	c, rec := newContext()
	require.NoError(t, New(c).WithError(errors.New("pq: connection refused")).Build())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}
