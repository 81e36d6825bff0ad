package account

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/auth"
	"github.com/Additional-Code/tableside/internal/entity"
	repo "github.com/Additional-Code/tableside/internal/repository/account"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

const minPasswordLen = 8

// Store is the account persistence the service relies on.
type Store interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	List(ctx context.Context, role entity.Role) ([]entity.User, error)
	SetRole(ctx context.Context, id int64, role entity.Role) error
	Archive(ctx context.Context, id int64) error
}

// RegisterInput carries a sign-up request.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      entity.User
}

// Service manages accounts and authentication.
type Service struct {
	store  Store
	issuer *auth.Issuer
	logger *zap.Logger
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Issuer     *auth.Issuer
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return New(p.Repository, p.Issuer, p.Logger)
}

// New builds a Service from its collaborators.
func New(store Store, issuer *auth.Issuer, logger *zap.Logger) *Service {
	return &Service{store: store, issuer: issuer, logger: logger}
}

// Register creates a client account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	return s.create(ctx, in, entity.RoleClient)
}

// CreateStaff creates an account with an explicit role. Used by admins and the seeder.
func (s *Service) CreateStaff(ctx context.Context, in RegisterInput, role entity.Role) (*entity.User, error) {
	if !role.Valid() {
		return nil, errorbank.BadRequest("unknown role", errorbank.WithDetail("role", role))
	}
	return s.create(ctx, in, role)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role entity.Role) (*entity.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	switch {
	case in.Name == "":
		return nil, errorbank.BadRequest("name is required")
	case len(in.Password) < minPasswordLen:
		return nil, errorbank.BadRequest("password is too short", errorbank.WithDetail("min", minPasswordLen))
	}

	hash, err := s.issuer.HashPassword(in.Password)
	if err != nil {
		return nil, errorbank.Internal("failed to hash password", errorbank.WithCause(err))
	}
	now := time.Now().UTC()
	u := &entity.User{
		Name:         in.Name,
		Email:        email,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, translate(err)
	}
	s.logger.Info("account created", zap.Int64("user_id", u.ID), zap.String("role", string(role)))
	return u, nil
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, errorbank.Unauthorized("invalid credentials")
	}
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, errorbank.Unauthorized("invalid credentials")
		}
		return nil, translate(err)
	}
	if u.Archived || !s.issuer.CheckPassword(u.PasswordHash, password) {
		return nil, errorbank.Unauthorized("invalid credentials")
	}

	token, expires, err := s.issuer.Issue(auth.Principal{UserID: u.ID, Role: u.Role})
	if err != nil {
		return nil, errorbank.Internal("failed to issue token", errorbank.WithCause(err))
	}
	return &Session{Token: token, ExpiresAt: expires, User: *u}, nil
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, userID int64) (*entity.User, error) {
	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	if u.Archived {
		return nil, errorbank.Unauthorized("account is archived")
	}
	return u, nil
}

// ListUsers lists accounts, optionally filtered by role.
func (s *Service) ListUsers(ctx context.Context, role entity.Role) ([]entity.User, error) {
	if role != "" && !role.Valid() {
		return nil, errorbank.BadRequest("unknown role", errorbank.WithDetail("role", role))
	}
	users, err := s.store.List(ctx, role)
	if err != nil {
		return nil, translate(err)
	}
	return users, nil
}

// SetRole changes an account's role. Admins cannot demote themselves.
func (s *Service) SetRole(ctx context.Context, actor auth.Principal, id int64, role entity.Role) error {
	if !role.Valid() {
		return errorbank.BadRequest("unknown role", errorbank.WithDetail("role", role))
	}
	if actor.UserID == id && role != entity.RoleAdmin {
		return errorbank.Unprocessable("admins cannot demote themselves")
	}
	if err := s.store.SetRole(ctx, id, role); err != nil {
		return translate(err)
	}
	s.logger.Info("role changed", zap.Int64("user_id", id), zap.String("role", string(role)), zap.Int64("by", actor.UserID))
	return nil
}

// Archive disables an account.
func (s *Service) Archive(ctx context.Context, actor auth.Principal, id int64) error {
	if actor.UserID == id {
		return errorbank.Unprocessable("admins cannot archive themselves")
	}
	if err := s.store.Archive(ctx, id); err != nil {
		return translate(err)
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", errorbank.BadRequest("email is invalid")
	}
	return strings.ToLower(addr.Address), nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("user not found")
	case errors.Is(err, repo.ErrEmailTaken):
		return errorbank.Conflict("email already registered")
	default:
		return errorbank.Internal("account operation failed", errorbank.WithCause(err))
	}
}
