package account

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/tableside/internal/auth"
	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/database/databasetest"
	"github.com/Additional-Code/tableside/internal/dto"
	"github.com/Additional-Code/tableside/internal/entity"
	repo "github.com/Additional-Code/tableside/internal/repository/account"
	service "github.com/Additional-Code/tableside/internal/service/account"
	"github.com/Additional-Code/tableside/internal/transport/http/middleware"
	"github.com/Additional-Code/tableside/internal/transport/http/middleware/middlewaretest"
)

const password = "correct-horse"

// setup wires the handlers to a real account table so role checks on admin
// routes see the same rows the admin endpoints change.
func setup(t *testing.T) (*echo.Echo, *service.Service) {
	t.Helper()
	issuer := auth.NewIssuer(config.Config{Auth: config.Auth{
		JWTSecret:  "account-handler-secret",
		Issuer:     "tableside-test",
		TokenTTL:   time.Hour,
		BcryptCost: 4,
	}})
	accounts := repo.NewRepository(databasetest.Open(t))
	svc := service.New(accounts, issuer, zaptest.NewLogger(t))
	e := echo.New()
	Register(e, middleware.NewGuard(issuer, accounts), NewHandler(svc))
	return e, svc
}

func login(t *testing.T, e *echo.Echo, email string) string {
	t.Helper()
	rec, env := middlewaretest.Do(t, e, http.MethodPost, "/auth/login", "", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session dto.SessionResponse
	env.Decode(t, &session)
	assert.Equal(t, "Bearer", session.TokenType)
	return session.AccessToken
}

func seedAdmin(t *testing.T, svc *service.Service, email string) *entity.User {
	t.Helper()
	u, err := svc.CreateStaff(context.Background(), service.RegisterInput{Name: "Admin", Email: email, Password: password}, entity.RoleAdmin)
	require.NoError(t, err)
	return u
}

func TestRegisterLoginAndMe(t *testing.T) {
	e, _ := setup(t)

	rec, env := middlewaretest.Do(t, e, http.MethodPost, "/auth/register", "",
		`{"name":"Lia","email":"Lia@Example.com","password":"`+password+`","role":"admin"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var user dto.UserResponse
	env.Decode(t, &user)
	assert.Equal(t, "lia@example.com", user.Email)
	assert.Equal(t, string(entity.RoleClient), user.Role, "self registration always creates clients")

	rec, env = middlewaretest.Do(t, e, http.MethodPost, "/auth/register", "", `{"name":"Lia","email":"lia@example.com","password":"`+password+`"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", env.Error.Kind)

	rec, _ = middlewaretest.Do(t, e, http.MethodPost, "/auth/register", "", `{"name":"Short","email":"s@example.com","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = middlewaretest.Do(t, e, http.MethodPost, "/auth/login", "", `{"email":"lia@example.com","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := login(t, e, "lia@example.com")
	rec, env = middlewaretest.Do(t, e, http.MethodGet, "/me", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	env.Decode(t, &user)
	assert.Equal(t, "Lia", user.Name)

	rec, _ = middlewaretest.Do(t, e, http.MethodGet, "/admin/users", token, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminRoutesFollowStoredRole(t *testing.T) {
	e, svc := setup(t)
	admin := seedAdmin(t, svc, "boss@example.com")
	adminToken := login(t, e, "boss@example.com")

	rec, env := middlewaretest.Do(t, e, http.MethodPost, "/admin/users", adminToken,
		`{"name":"Deputy","email":"deputy@example.com","password":"`+password+`","role":"admin"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var deputy dto.UserResponse
	env.Decode(t, &deputy)
	deputyToken := login(t, e, "deputy@example.com")

	rec, env = middlewaretest.Do(t, e, http.MethodGet, "/admin/users?role=admin", deputyToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, env.Meta["count"])

	deputyPath := "/admin/users/" + strconv.FormatInt(deputy.ID, 10)
	rec, _ = middlewaretest.Do(t, e, http.MethodPut, deputyPath+"/role", adminToken, `{"role":"worker"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// The deputy's token still claims admin but the stored role now says worker.
	rec, env = middlewaretest.Do(t, e, http.MethodGet, "/admin/users", deputyToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", env.Error.Kind)

	rec, _ = middlewaretest.Do(t, e, http.MethodPut, deputyPath+"/role", adminToken, `{"role":"admin"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = middlewaretest.Do(t, e, http.MethodPost, deputyPath+"/archive", adminToken, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = middlewaretest.Do(t, e, http.MethodGet, "/admin/users", deputyToken, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = middlewaretest.Do(t, e, http.MethodPost, "/auth/login", "", `{"email":"deputy@example.com","password":"`+password+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	adminPath := "/admin/users/" + strconv.FormatInt(admin.ID, 10)
	rec, _ = middlewaretest.Do(t, e, http.MethodPut, adminPath+"/role", adminToken, `{"role":"client"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec, _ = middlewaretest.Do(t, e, http.MethodPost, adminPath+"/archive", adminToken, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = middlewaretest.Do(t, e, http.MethodPut, deputyPath+"/role", adminToken, `{"role":"owner"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
