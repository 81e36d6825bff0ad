package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/Additional-Code/tableside/internal/database"
	"github.com/Additional-Code/tableside/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/tableside/repository/account")

var (
	// ErrNotFound is returned when a user is missing.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering an email twice.
	ErrEmailTaken = errors.New("email already registered")
)

// Repository encapsulates access to user accounts.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// Create inserts a user. Emails are stored lower-cased.
func (r *Repository) Create(ctx context.Context, u *entity.User) error {
	ctx, span := repoTracer.Start(ctx, "AccountRepository.Create")
	defer span.End()

	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if _, err := r.writer.NewInsert().Model(u).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// GetByID loads a user.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	u := new(entity.User)
	err := r.reader.NewSelect().Model(u).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByEmail loads a user by login email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	u := new(entity.User)
	err := r.reader.NewSelect().Model(u).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// List returns users, optionally filtered by role.
func (r *Repository) List(ctx context.Context, role entity.Role) ([]entity.User, error) {
	var users []entity.User
	q := r.reader.NewSelect().Model(&users).OrderExpr("id ASC")
	if role != "" {
		q = q.Where("role = ?", role)
	}
	err := q.Scan(ctx)
	return users, err
}

// SetRole changes a user's role.
func (r *Repository) SetRole(ctx context.Context, id int64, role entity.Role) error {
	return r.update(ctx, id, "role = ?", role)
}

// Archive flags a user as archived.
func (r *Repository) Archive(ctx context.Context, id int64) error {
	return r.update(ctx, id, "archived = ?", true)
}

func (r *Repository) update(ctx context.Context, id int64, set string, value any) error {
	res, err := r.writer.NewUpdate().Model((*entity.User)(nil)).
		Set(set, value).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
