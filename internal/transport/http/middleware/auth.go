package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/tableside/internal/auth"
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/presentation/http/response"
	accountrepo "github.com/Additional-Code/tableside/internal/repository/account"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

// Module provides the request guard to Fx.
var Module = fx.Provide(func(issuer *auth.Issuer, accounts *accountrepo.Repository) *Guard {
	return NewGuard(issuer, accounts)
})

const principalKey = "tableside.principal"

// Accounts loads the stored state of an authenticated caller.
type Accounts interface {
	GetByID(ctx context.Context, id int64) (*entity.User, error)
}

// Guard authenticates requests with bearer tokens.
type Guard struct {
	issuer   *auth.Issuer
	accounts Accounts
}

// NewGuard builds a Guard around the token issuer and the account store used
// to re-check role gated routes.
func NewGuard(issuer *auth.Issuer, accounts Accounts) *Guard {
	return &Guard{issuer: issuer, accounts: accounts}
}

// Authenticate rejects requests without a valid token and stores the caller
// on both the echo and request contexts. Browsers cannot set headers on a
// websocket handshake, so the access_token query parameter is accepted too.
func (g *Guard) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
		if token == "" {
			token = c.QueryParam("access_token")
		}
		if token == "" {
			return response.New(c).WithError(errorbank.Unauthorized("missing bearer token")).Build()
		}
		p, err := g.issuer.Verify(token)
		if err != nil {
			return response.New(c).WithError(errorbank.Unauthorized("invalid or expired token")).Build()
		}
		c.Set(principalKey, p)
		c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), p)))
		return next(c)
	}
}

// RequireRole lets the request through only for the listed roles. Token
// claims can outlive a demotion or an archive, so the caller's account is
// reloaded and its stored role wins. It must run after Authenticate.
func (g *Guard) RequireRole(roles ...entity.Role) echo.MiddlewareFunc {
	allowed := make(map[entity.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := Principal(c)
			if !ok {
				return response.New(c).WithError(errorbank.Unauthorized("authentication required")).Build()
			}
			if _, ok := allowed[p.Role]; !ok {
				return response.New(c).WithError(errorbank.Forbidden("insufficient role")).Build()
			}

			u, err := g.accounts.GetByID(c.Request().Context(), p.UserID)
			switch {
			case errors.Is(err, accountrepo.ErrNotFound):
				return response.New(c).WithError(errorbank.Unauthorized("account no longer exists")).Build()
			case err != nil:
				return response.New(c).WithError(errorbank.Internal("failed to load account", errorbank.WithCause(err))).Build()
			case u.Archived:
				return response.New(c).WithError(errorbank.Unauthorized("account is archived")).Build()
			}
			if _, ok := allowed[u.Role]; !ok {
				return response.New(c).WithError(errorbank.Forbidden("insufficient role")).Build()
			}

			p.Role = u.Role
			c.Set(principalKey, p)
			c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}

// RequireStaff is RequireRole for workers and admins.
func (g *Guard) RequireStaff() echo.MiddlewareFunc {
	return g.RequireRole(entity.RoleWorker, entity.RoleAdmin)
}

// Principal returns the authenticated caller.
func Principal(c echo.Context) (auth.Principal, bool) {
	p, ok := c.Get(principalKey).(auth.Principal)
	return p, ok
}

func bearer(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
