package reservation

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/tableside/internal/database"
	"github.com/Additional-Code/tableside/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/tableside/repository/reservation")

var (
	// ErrNotFound is returned when a reservation is missing.
	ErrNotFound = errors.New("reservation not found")
	// ErrStaleState is returned when the reservation left the expected status.
	ErrStaleState = errors.New("reservation state changed concurrently")
)

// Repository encapsulates access to reservations.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// Create inserts a reservation.
func (r *Repository) Create(ctx context.Context, res *entity.Reservation) error {
	ctx, span := repoTracer.Start(ctx, "ReservationRepository.Create", trace.WithAttributes(attribute.Int64("user.id", res.UserID)))
	defer span.End()

	if _, err := r.writer.NewInsert().Model(res).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// GetByID loads a reservation from the writer so status reads are never stale.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Reservation, error) {
	res := new(entity.Reservation)
	err := r.writer.NewSelect().Model(res).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListByUser returns a user's reservations, upcoming first.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]entity.Reservation, error) {
	var out []entity.Reservation
	err := r.reader.NewSelect().Model(&out).
		Where("user_id = ?", userID).
		OrderExpr("reserved_for DESC").
		Scan(ctx)
	return out, err
}

// ListActive returns every active reservation, soonest expiry first.
func (r *Repository) ListActive(ctx context.Context) ([]entity.Reservation, error) {
	var out []entity.Reservation
	err := r.reader.NewSelect().Model(&out).
		Where("status = ?", entity.ReservationActive).
		OrderExpr("expires_at ASC").
		Scan(ctx)
	return out, err
}

// Transition moves a reservation from one status to another.
func (r *Repository) Transition(ctx context.Context, id int64, from, to entity.ReservationStatus) error {
	res, err := r.writer.NewUpdate().Model((*entity.Reservation)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", from).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleState
	}
	return nil
}

// DissolveExpired moves up to limit active reservations whose hold ended at or
// before now to Dissolve and returns them.
func (r *Repository) DissolveExpired(ctx context.Context, now time.Time, limit int) ([]entity.Reservation, error) {
	ctx, span := repoTracer.Start(ctx, "ReservationRepository.DissolveExpired")
	defer span.End()

	var dissolved []entity.Reservation
	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model(&dissolved).
			Where("status = ?", entity.ReservationActive).
			Where("expires_at <= ?", now).
			OrderExpr("expires_at ASC").
			Limit(limit)
		if database.SupportsRowLocks(tx) {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			return err
		}
		if len(dissolved) == 0 {
			return nil
		}

		ids := make([]int64, len(dissolved))
		for i := range dissolved {
			ids[i] = dissolved[i].ID
			dissolved[i].Status = entity.ReservationDissolve
			dissolved[i].UpdatedAt = now
		}
		_, err := tx.NewUpdate().Model((*entity.Reservation)(nil)).
			Set("status = ?", entity.ReservationDissolve).
			Set("updated_at = ?", now).
			Where("id IN (?)", bun.In(ids)).
			Where("status = ?", entity.ReservationActive).
			Exec(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dissolve failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("reservation.dissolved", len(dissolved)))
	return dissolved, nil
}
