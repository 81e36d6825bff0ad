package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tableside/internal/auth"
	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/entity"
	accountrepo "github.com/Additional-Code/tableside/internal/repository/account"
)

type accountsStub map[int64]entity.User

func (a accountsStub) GetByID(_ context.Context, id int64) (*entity.User, error) {
	u, ok := a[id]
	if !ok {
		return nil, accountrepo.ErrNotFound
	}
	return &u, nil
}

func staffAccounts() accountsStub {
	return accountsStub{
		1: {ID: 1, Role: entity.RoleClient},
		2: {ID: 2, Role: entity.RoleWorker},
	}
}

func newIssuer() *auth.Issuer {
	return auth.NewIssuer(config.Config{Auth: config.Auth{
		JWTSecret: "middleware-test-secret",
		Issuer:    "tableside-test",
		TokenTTL:  time.Hour,
	}})
}

func newRouter(g *Guard) *echo.Echo {
	e := echo.New()
	e.Use(Metrics())
	e.GET("/me", func(c echo.Context) error {
		p, _ := auth.FromContext(c.Request().Context())
		return c.JSON(http.StatusOK, map[string]any{"id": p.UserID})
	}, g.Authenticate)
	e.GET("/staff", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, g.Authenticate, g.RequireStaff())
	e.GET("/staff/role", func(c echo.Context) error {
		p, _ := auth.FromContext(c.Request().Context())
		return c.String(http.StatusOK, string(p.Role))
	}, g.Authenticate, g.RequireStaff())
	return e
}

func do(e *echo.Echo, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticate(t *testing.T) {
	issuer := newIssuer()
	e := newRouter(NewGuard(issuer, staffAccounts()))
	token, _, err := issuer.Issue(auth.Principal{UserID: 42, Role: entity.RoleClient})
	require.NoError(t, err)

	rec := do(e, "/me", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":42}`, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(e, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, "/me", "garbage").Code)
	assert.Equal(t, http.StatusOK, do(e, "/me?access_token="+token, "").Code)
}

func TestRequireStaff(t *testing.T) {
	issuer := newIssuer()
	e := newRouter(NewGuard(issuer, staffAccounts()))
	client, _, _ := issuer.Issue(auth.Principal{UserID: 1, Role: entity.RoleClient})
	worker, _, _ := issuer.Issue(auth.Principal{UserID: 2, Role: entity.RoleWorker})

	assert.Equal(t, http.StatusForbidden, do(e, "/staff", client).Code)
	assert.Equal(t, http.StatusNoContent, do(e, "/staff", worker).Code)
}

func TestRequireStaffReloadsAccount(t *testing.T) {
	issuer := newIssuer()
	accounts := accountsStub{
		3: {ID: 3, Role: entity.RoleClient},
		4: {ID: 4, Role: entity.RoleWorker, Archived: true},
		5: {ID: 5, Role: entity.RoleAdmin},
	}
	e := newRouter(NewGuard(issuer, accounts))
	token := func(id int64) string {
		tok, _, err := issuer.Issue(auth.Principal{UserID: id, Role: entity.RoleWorker})
		require.NoError(t, err)
		return tok
	}

	// Demoted since the token was issued.
	assert.Equal(t, http.StatusForbidden, do(e, "/staff", token(3)).Code)
	// Archived since the token was issued.
	assert.Equal(t, http.StatusUnauthorized, do(e, "/staff", token(4)).Code)
	// Deleted.
	assert.Equal(t, http.StatusUnauthorized, do(e, "/staff", token(99)).Code)

	// Promoted: the stored role reaches the handler.
	rec := do(e, "/staff/role", token(5))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(entity.RoleAdmin), rec.Body.String())

	// Client routes do not consult the store.
	assert.Equal(t, http.StatusOK, do(e, "/me", token(4)).Code)
}

func TestMetricsUseRoutePattern(t *testing.T) {
	e := newRouter(NewGuard(newIssuer(), staffAccounts()))
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/me", "401"))

	do(e, "/me", "")

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/me", "401"))
	assert.Equal(t, before+1, after)
}

func TestBearer(t *testing.T) {
	assert.Equal(t, "abc", bearer("Bearer abc"))
	assert.Equal(t, "abc", bearer("bearer  abc"))
	assert.Empty(t, bearer("Basic abc"))
	assert.Empty(t, bearer("Bearer "))
}
