package seeder

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/service/account"
	"github.com/Additional-Code/tableside/internal/service/inventory"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(NewSeeder)

// Accounts creates user accounts.
type Accounts interface {
	CreateStaff(ctx context.Context, in account.RegisterInput, role entity.Role) (*entity.User, error)
}

// Menu creates inventory items.
type Menu interface {
	Create(ctx context.Context, in inventory.CreateInput) (*entity.InventoryItem, error)
}

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	accounts Accounts
	menu     Menu
	logger   *zap.Logger
}

// NewSeeder wires the seeder on top of the account and inventory services.
func NewSeeder(accounts *account.Service, menu *inventory.Service, logger *zap.Logger) *Seeder {
	return New(accounts, menu, logger)
}

// New builds a Seeder from its collaborators.
func New(accounts Accounts, menu Menu, logger *zap.Logger) *Seeder {
	return &Seeder{accounts: accounts, menu: menu, logger: logger}
}

type seedUser struct {
	in   account.RegisterInput
	role entity.Role
}

var users = []seedUser{
	{account.RegisterInput{Name: "Admin", Email: "admin@tableside.local", Password: "admin-password"}, entity.RoleAdmin},
	{account.RegisterInput{Name: "Counter Staff", Email: "worker@tableside.local", Password: "worker-password"}, entity.RoleWorker},
	{account.RegisterInput{Name: "Sample Customer", Email: "client@tableside.local", Phone: "09170000000", Password: "client-password"}, entity.RoleClient},
}

var menu = []inventory.CreateInput{
	{SKU: "CHK-ADOBO", Name: "Chicken Adobo", Unit: "plate", Price: decimal.RequireFromString("185.00"), InitialStock: 40},
	{SKU: "PRK-SINIGANG", Name: "Pork Sinigang", Unit: "bowl", Price: decimal.RequireFromString("220.00"), InitialStock: 25},
	{SKU: "RICE-GARLIC", Name: "Garlic Rice", Unit: "cup", Price: decimal.RequireFromString("45.00"), InitialStock: 120},
	{SKU: "HALO-HALO", Name: "Halo-Halo", Unit: "glass", Price: decimal.RequireFromString("130.00"), InitialStock: 30},
	{SKU: "CALAMANSI", Name: "Calamansi Juice", Unit: "glass", Price: decimal.RequireFromString("60.00"), InitialStock: 60},
}

// Run seeds accounts and the menu. Existing rows are left untouched.
func (s *Seeder) Run(ctx context.Context) error {
	if err := s.Users(ctx); err != nil {
		return err
	}
	return s.Menu(ctx)
}

// Users seeds one account per role.
func (s *Seeder) Users(ctx context.Context) error {
	created := 0
	for _, u := range users {
		_, err := s.accounts.CreateStaff(ctx, u.in, u.role)
		if errorbank.IsKind(err, errorbank.KindConflict) {
			continue
		}
		if err != nil {
			return err
		}
		created++
	}
	s.logger.Info("seeded users", zap.Int("created", created), zap.Int("total", len(users)))
	return nil
}

// Menu seeds sample inventory items.
func (s *Seeder) Menu(ctx context.Context) error {
	created := 0
	for _, item := range menu {
		_, err := s.menu.Create(ctx, item)
		if errorbank.IsKind(err, errorbank.KindConflict) {
			continue
		}
		if err != nil {
			return err
		}
		created++
	}
	s.logger.Info("seeded menu", zap.Int("created", created), zap.Int("total", len(menu)))
	return nil
}
