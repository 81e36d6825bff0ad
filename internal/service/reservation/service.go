// Package reservation manages table holds. Every hold carries a server-side
// expiry; the sweeper dissolves expired holds and reads dissolve them lazily,
// so an abandoned hold never stays Active.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/auth"
	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/entity"
	"github.com/Additional-Code/tableside/internal/messaging"
	"github.com/Additional-Code/tableside/internal/observability"
	repo "github.com/Additional-Code/tableside/internal/repository/reservation"
	"github.com/Additional-Code/tableside/internal/service/message"
	"github.com/Additional-Code/tableside/internal/worker"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/Additional-Code/tableside/service/reservation")

const (
	maxPartySize = 30
	maxNoteLen   = 500

	sourceSweeper = "sweeper"
	sourceLazy    = "lazy"
)

// Store is the reservation persistence the service relies on.
type Store interface {
	Create(ctx context.Context, res *entity.Reservation) error
	GetByID(ctx context.Context, id int64) (*entity.Reservation, error)
	ListByUser(ctx context.Context, userID int64) ([]entity.Reservation, error)
	ListActive(ctx context.Context) ([]entity.Reservation, error)
	Transition(ctx context.Context, id int64, from, to entity.ReservationStatus) error
	DissolveExpired(ctx context.Context, now time.Time, limit int) ([]entity.Reservation, error)
}

// CreateInput describes a booking request.
type CreateInput struct {
	PartySize   int
	ReservedFor time.Time
	Note        string
}

// DissolvedEvent is published for every reservation that expired.
type DissolvedEvent struct {
	ReservationID int64     `json:"reservation_id"`
	UserID        int64     `json:"user_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	Source        string    `json:"source"`
}

// Service manages reservations.
type Service struct {
	store     Store
	notifier  message.Notifier
	publisher messaging.Client
	metrics   *observability.Metrics
	logger    *zap.Logger
	cfg       config.Reservation
	now       func() time.Time
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Notifier   message.Notifier
	Publisher  messaging.Client
	Metrics    *observability.Metrics
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	return New(p.Repository, p.Notifier, p.Publisher, p.Metrics, p.Config.Reservation, p.Logger)
}

// New builds a Service from its collaborators.
func New(store Store, notifier message.Notifier, publisher messaging.Client, metrics *observability.Metrics, cfg config.Reservation, logger *zap.Logger) *Service {
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	return &Service{
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Create books a table. The hold expires HoldDuration after the reserved time.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*entity.Reservation, error) {
	now := s.now().UTC()
	in.Note = strings.TrimSpace(in.Note)
	switch {
	case userID <= 0:
		return nil, errorbank.Unauthorized("user identity is required")
	case in.PartySize <= 0 || in.PartySize > maxPartySize:
		return nil, errorbank.BadRequest("party_size is out of range", errorbank.WithDetail("max", maxPartySize))
	case in.ReservedFor.IsZero():
		return nil, errorbank.BadRequest("reserved_for is required")
	case in.ReservedFor.Before(now):
		return nil, errorbank.BadRequest("reserved_for must be in the future")
	case len(in.Note) > maxNoteLen:
		return nil, errorbank.BadRequest("note is too long")
	}

	res := &entity.Reservation{
		UserID:      userID,
		PartySize:   in.PartySize,
		ReservedFor: in.ReservedFor.UTC(),
		ExpiresAt:   in.ReservedFor.UTC().Add(s.cfg.HoldDuration),
		Status:      entity.ReservationActive,
		Note:        in.Note,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Create(ctx, res); err != nil {
		return nil, errorbank.Internal("failed to create reservation", errorbank.WithCause(err))
	}
	return res, nil
}

// Get returns a reservation visible to viewer, dissolving it first if its hold ran out.
func (s *Service) Get(ctx context.Context, viewer auth.Principal, id int64) (*entity.Reservation, error) {
	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if !viewer.Role.Staff() && res.UserID != viewer.UserID {
		return nil, errorbank.NotFound("reservation not found")
	}
	s.settleExpiry(ctx, res)
	return res, nil
}

// ListMine returns the caller's reservations.
func (s *Service) ListMine(ctx context.Context, userID int64) ([]entity.Reservation, error) {
	out, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, errorbank.Internal("failed to list reservations", errorbank.WithCause(err))
	}
	for i := range out {
		s.settleExpiry(ctx, &out[i])
	}
	return out, nil
}

// ListActive returns holds that are still live, for the floor staff.
func (s *Service) ListActive(ctx context.Context) ([]entity.Reservation, error) {
	rows, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, errorbank.Internal("failed to list reservations", errorbank.WithCause(err))
	}
	out := rows[:0]
	for i := range rows {
		s.settleExpiry(ctx, &rows[i])
		if rows[i].Status == entity.ReservationActive {
			out = append(out, rows[i])
		}
	}
	return out, nil
}

// MarkArrived records that the party showed up.
func (s *Service) MarkArrived(ctx context.Context, id int64) (*entity.Reservation, error) {
	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	s.settleExpiry(ctx, res)
	if res.Status != entity.ReservationActive {
		return nil, errorbank.Unprocessable("reservation is no longer active", errorbank.WithDetail("status", res.Status))
	}
	if err := s.store.Transition(ctx, id, entity.ReservationActive, entity.ReservationArrived); err != nil {
		return nil, translate(err)
	}
	res.Status = entity.ReservationArrived
	res.UpdatedAt = s.now().UTC()
	return res, nil
}

// Dissolve releases a hold early. Owners may dissolve their own holds.
func (s *Service) Dissolve(ctx context.Context, viewer auth.Principal, id int64) (*entity.Reservation, error) {
	res, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if !viewer.Role.Staff() && res.UserID != viewer.UserID {
		return nil, errorbank.NotFound("reservation not found")
	}
	if res.Status == entity.ReservationDissolve {
		return res, nil
	}
	if res.Status.Terminal() {
		return nil, errorbank.Unprocessable("reservation is no longer active", errorbank.WithDetail("status", res.Status))
	}
	if err := s.store.Transition(ctx, id, entity.ReservationActive, entity.ReservationDissolve); err != nil {
		return nil, translate(err)
	}
	res.Status = entity.ReservationDissolve
	res.UpdatedAt = s.now().UTC()
	return res, nil
}

// DissolveExpired dissolves every active hold whose expiry has passed, in
// batches, and returns how many were dissolved.
func (s *Service) DissolveExpired(ctx context.Context) (int, error) {
	ctx, span := serviceTracer.Start(ctx, "ReservationService.DissolveExpired")
	defer span.End()

	now := s.now().UTC()
	total := 0
	for {
		batch, err := s.store.DissolveExpired(ctx, now, s.cfg.SweepBatch)
		if err != nil {
			return total, fmt.Errorf("dissolve expired reservations: %w", err)
		}
		for i := range batch {
			s.announce(ctx, batch[i], sourceSweeper)
		}
		total += len(batch)
		if len(batch) < s.cfg.SweepBatch {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	span.SetAttributes(attribute.Int("reservations.dissolved", total))
	s.metrics.RecordReservationsDissolved(ctx, total, sourceSweeper)
	if total > 0 {
		s.logger.Info("expired reservations dissolved", zap.Int("count", total))
	}
	return total, nil
}

// SweepJob returns the periodic job that runs DissolveExpired.
func (s *Service) SweepJob() worker.Job {
	return worker.Job{
		Name:     "reservation.dissolve",
		Interval: s.cfg.SweepInterval,
		Run: func(ctx context.Context) error {
			_, err := s.DissolveExpired(ctx)
			return err
		},
	}
}

// settleExpiry dissolves res in place when its hold has run out.
func (s *Service) settleExpiry(ctx context.Context, res *entity.Reservation) {
	if !res.Expired(s.now()) {
		return
	}
	err := s.store.Transition(ctx, res.ID, entity.ReservationActive, entity.ReservationDissolve)
	switch {
	case err == nil:
		res.Status = entity.ReservationDissolve
		res.UpdatedAt = s.now().UTC()
		s.metrics.RecordReservationsDissolved(ctx, 1, sourceLazy)
		s.announce(ctx, *res, sourceLazy)
	case errors.Is(err, repo.ErrStaleState):
		// Someone else moved it first; reload to report the real state.
		if fresh, gerr := s.store.GetByID(ctx, res.ID); gerr == nil {
			*res = *fresh
		}
	default:
		s.logger.Warn("lazy dissolve failed", zap.Int64("reservation_id", res.ID), zap.Error(err))
	}
}

func (s *Service) announce(ctx context.Context, res entity.Reservation, source string) {
	if s.notifier != nil {
		msg := fmt.Sprintf("Your reservation for %s has expired and was released.", res.ReservedFor.Format("Jan 2 15:04"))
		if _, err := s.notifier.Notify(ctx, res.UserID, msg, fmt.Sprintf("/reservations/%d", res.ID)); err != nil {
			s.logger.Warn("dissolve notification failed", zap.Int64("reservation_id", res.ID), zap.Error(err))
		}
	}
	event := DissolvedEvent{ReservationID: res.ID, UserID: res.UserID, ExpiresAt: res.ExpiresAt, Source: source}
	if err := messaging.PublishEvent(ctx, s.publisher, messaging.EventReservationDissolved, fmt.Sprintf("reservation-%d", res.ID), event); err != nil {
		s.logger.Error("publish reservation dissolved", zap.Int64("reservation_id", res.ID), zap.Error(err))
	}
}

func translate(err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return errorbank.NotFound("reservation not found")
	case errors.Is(err, repo.ErrStaleState):
		return errorbank.Conflict("reservation changed concurrently, retry")
	default:
		return errorbank.Internal("reservation operation failed", errorbank.WithCause(err))
	}
}
