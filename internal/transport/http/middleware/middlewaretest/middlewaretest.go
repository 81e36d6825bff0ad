// Package middlewaretest builds request guards backed by an in-memory account
// store for handler tests.
package middlewaretest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tableside/internal/auth"
	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/entity"
	accountrepo "github.com/Additional-Code/tableside/internal/repository/account"
	"github.com/Additional-Code/tableside/internal/transport/http/middleware"
)

// Accounts is an in-memory middleware.Accounts.
type Accounts struct {
	mu    sync.Mutex
	users map[int64]entity.User
}

// GetByID returns the stored user or accountrepo.ErrNotFound.
func (a *Accounts) GetByID(_ context.Context, id int64) (*entity.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[id]
	if !ok {
		return nil, accountrepo.ErrNotFound
	}
	return &u, nil
}

// Put stores or replaces a user.
func (a *Accounts) Put(u entity.User) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[u.ID] = u
}

// Env bundles a guard with the issuer that signs tokens for it.
type Env struct {
	Guard    *middleware.Guard
	Issuer   *auth.Issuer
	Accounts *Accounts
}

// New returns a guard whose account store starts empty.
func New() *Env {
	issuer := auth.NewIssuer(config.Config{Auth: config.Auth{
		JWTSecret: "handler-test-secret",
		Issuer:    "tableside-test",
		TokenTTL:  time.Hour,
	}})
	accounts := &Accounts{users: make(map[int64]entity.User)}
	return &Env{
		Guard:    middleware.NewGuard(issuer, accounts),
		Issuer:   issuer,
		Accounts: accounts,
	}
}

// Token stores an active account with the given role and signs a token for it.
func (e *Env) Token(t testing.TB, userID int64, role entity.Role) string {
	t.Helper()
	e.Accounts.Put(entity.User{ID: userID, Name: "user", Role: role})
	token, _, err := e.Issuer.Issue(auth.Principal{UserID: userID, Role: role})
	require.NoError(t, err)
	return token
}

// Envelope is the decoded response body every handler writes.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
	Error   struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// Decode unmarshals the data payload into v.
func (env Envelope) Decode(t testing.TB, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

// Do sends a JSON request through h with an optional bearer token.
func Do(t testing.TB, h http.Handler, method, target, token, body string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}
