package seeder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/service/account"
	"github.com/Additional-Code/tableside/internal/service/inventory"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

type accountsStub struct {
	seen map[string]bool
	err  error
}

func (a *accountsStub) CreateStaff(_ context.Context, in account.RegisterInput, role entity.Role) (*entity.User, error) {
	if a.err != nil {
		return nil, a.err
	}
	if a.seen[in.Email] {
		return nil, errorbank.Conflict("email already registered")
	}
	a.seen[in.Email] = true
	return &entity.User{Email: in.Email, Role: role}, nil
}

type menuStub struct{ skus []string }

func (m *menuStub) Create(_ context.Context, in inventory.CreateInput) (*entity.InventoryItem, error) {
	for _, s := range m.skus {
		if s == in.SKU {
			return nil, errorbank.Conflict("sku already exists")
		}
	}
	m.skus = append(m.skus, in.SKU)
	return &entity.InventoryItem{SKU: in.SKU}, nil
}

func TestRunIsRepeatable(t *testing.T) {
	accounts := &accountsStub{seen: map[string]bool{}}
	m := &menuStub{}
	s := New(accounts, m, zaptest.NewLogger(t))

	require.NoError(t, s.Run(context.Background()))
	require.NoError(t, s.Run(context.Background()))

	assert.Len(t, accounts.seen, len(users))
	assert.Len(t, m.skus, len(menu))
}

func TestRunStopsOnUnexpectedError(t *testing.T) {
	boom := errors.New("db down")
	s := New(&accountsStub{err: boom}, &menuStub{}, zaptest.NewLogger(t))
	assert.ErrorIs(t, s.Run(context.Background()), boom)
}
