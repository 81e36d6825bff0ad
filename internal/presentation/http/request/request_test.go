package request

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tableside/pkg/errorbank"
)

func newContext(target, body string) echo.Context {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestParamID(t *testing.T) {
	c := newContext("/orders/12", "")
	c.SetParamNames("id")
	c.SetParamValues("12")
	id, err := ParamID(c, "id")
	require.NoError(t, err)
	assert.EqualValues(t, 12, id)

	c.SetParamValues("-1")
	_, err = ParamID(c, "id")
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
}

func TestQueryHelpers(t *testing.T) {
	c := newContext("/x?limit=5&since_id=9&bad=z", "")
	limit, err := QueryInt(c, "limit", 20)
	require.NoError(t, err)
	assert.Equal(t, 5, limit)

	offset, err := QueryInt(c, "offset", 0)
	require.NoError(t, err)
	assert.Zero(t, offset)

	since, err := QueryInt64(c, "since_id")
	require.NoError(t, err)
	assert.EqualValues(t, 9, since)

	_, err = QueryInt(c, "bad", 0)
	assert.Error(t, err)
}

func TestBind(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	require.NoError(t, Bind(newContext("/", `{"name":"x"}`), &v))
	assert.Equal(t, "x", v.Name)
	assert.True(t, errorbank.IsKind(Bind(newContext("/", `{`), &v), errorbank.KindBadRequest))
}
