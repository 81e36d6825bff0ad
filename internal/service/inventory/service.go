package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/cache"
	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/entity"
	repo "github.com/Additional-Code/tableside/internal/repository/inventory"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/tableside/service/inventory")

// Store is the inventory persistence the service relies on.
type Store interface {
	Create(ctx context.Context, item *entity.InventoryItem) error
	GetByID(ctx context.Context, id int64) (*entity.InventoryItem, error)
	List(ctx context.Context, includeArchived bool) ([]entity.InventoryItem, error)
	Restock(ctx context.Context, id int64, qty int) (*entity.InventoryItem, error)
	Archive(ctx context.Context, id int64) error
	Movements(ctx context.Context, id int64, limit int) ([]entity.InventoryMovement, error)
}

// CreateInput describes a new menu item.
type CreateInput struct {
	SKU          string
	Name         string
	Unit         string
	Price        decimal.Decimal
	InitialStock int
}

// Service manages the menu and its stock counters.
type Service struct {
	store    Store
	cache    cache.Store
	cacheTTL time.Duration
	logger   *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return New(p.Repository, p.Cache, p.Config.Cache.DefaultTTL, p.Logger)
}

// New builds a Service from its collaborators.
func New(store Store, c cache.Store, ttl time.Duration, logger *zap.Logger) *Service {
	if c == nil {
		c = cache.NewNoop()
	}
	return &Service{store: store, cache: c, cacheTTL: ttl, logger: logger}
}

// List returns the menu.
func (s *Service) List(ctx context.Context, includeArchived bool) ([]entity.InventoryItem, error) {
	items, err := s.store.List(ctx, includeArchived)
	if err != nil {
		return nil, errorbank.Internal("failed to list inventory", errorbank.WithCause(err))
	}
	return items, nil
}

// Get returns a single item, served from cache when possible.
func (s *Service) Get(ctx context.Context, id int64) (*entity.InventoryItem, error) {
	ctx, span := serviceTracer.Start(ctx, "InventoryService.Get", trace.WithAttributes(attribute.Int64("inventory.id", id)))
	defer span.End()

	item, err := cache.GetJSON[entity.InventoryItem](ctx, s.cache, cache.InventoryKey(id))
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("inventory cache read failed", zap.Int64("id", id), zap.Error(err))
	}

	item, err = s.store.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if err := cache.SetJSON(ctx, s.cache, cache.InventoryKey(id), item, s.cacheTTL); err != nil {
		s.logger.Warn("inventory cache write failed", zap.Int64("id", id), zap.Error(err))
	}
	return item, nil
}

// Create adds an item to the menu.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.InventoryItem, error) {
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.SKU == "":
		return nil, errorbank.BadRequest("sku is required")
	case in.Name == "":
		return nil, errorbank.BadRequest("name is required")
	case in.Price.IsNegative():
		return nil, errorbank.BadRequest("price must not be negative")
	case in.InitialStock < 0:
		return nil, errorbank.BadRequest("initial stock must not be negative")
	}
	if in.Unit == "" {
		in.Unit = "pcs"
	}

	now := time.Now().UTC()
	item := &entity.InventoryItem{
		SKU:       in.SKU,
		Name:      in.Name,
		Unit:      in.Unit,
		Price:     in.Price,
		StockIn:   in.InitialStock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, item); err != nil {
		return nil, translate(err)
	}
	s.logger.Info("inventory item created", zap.String("sku", item.SKU), zap.Int64("id", item.ID))
	return item, nil
}

// Restock adds qty units to an item.
func (s *Service) Restock(ctx context.Context, id int64, qty int) (*entity.InventoryItem, error) {
	if qty <= 0 {
		return nil, errorbank.BadRequest("quantity must be positive")
	}
	item, err := s.store.Restock(ctx, id, qty)
	if err != nil {
		return nil, translate(err)
	}
	s.invalidate(ctx, id)
	return item, nil
}

// Archive hides an item from the menu.
func (s *Service) Archive(ctx context.Context, id int64) error {
	if err := s.store.Archive(ctx, id); err != nil {
		return translate(err)
	}
	s.invalidate(ctx, id)
	return nil
}

// Movements returns the stock ledger for an item.
func (s *Service) Movements(ctx context.Context, id int64, limit int) ([]entity.InventoryMovement, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	rows, err := s.store.Movements(ctx, id, limit)
	if err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Delete(ctx, cache.InventoryKey(id)); err != nil {
		s.logger.Warn("inventory cache invalidation failed", zap.Int64("id", id), zap.Error(err))
	}
}

func translate(err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("inventory item not found")
	case errors.Is(err, repo.ErrDuplicateSKU):
		return errorbank.Conflict("sku already exists")
	default:
		return errorbank.Internal("inventory operation failed", errorbank.WithCause(err))
	}
}
