package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/tableside/internal/database/databasetest"
	"github.com/Additional-Code/tableside/internal/entity"
)

func newRepo(t *testing.T) (*Repository, int64) {
	t.Helper()
	conns := databasetest.Open(t)
	user := &entity.User{Name: "Ana", Email: "ana@example.com", PasswordHash: "x", Role: entity.RoleClient}
	_, err := conns.Writer.NewInsert().Model(user).Exec(context.Background())
	require.NoError(t, err)
	return NewRepository(conns), user.ID
}

func hold(t *testing.T, r *Repository, userID int64, expires time.Time, status entity.ReservationStatus) int64 {
	t.Helper()
	res := &entity.Reservation{
		UserID:      userID,
		PartySize:   2,
		ReservedFor: expires.Add(-time.Hour),
		ExpiresAt:   expires,
		Status:      status,
	}
	require.NoError(t, r.Create(context.Background(), res))
	return res.ID
}

func TestDissolveExpiredOnlyTouchesLapsedActiveHolds(t *testing.T) {
	r, userID := newRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	lapsed := hold(t, r, userID, now.Add(-time.Minute), entity.ReservationActive)
	atDeadline := hold(t, r, userID, now, entity.ReservationActive)
	upcoming := hold(t, r, userID, now.Add(time.Hour), entity.ReservationActive)
	arrived := hold(t, r, userID, now.Add(-time.Hour), entity.ReservationArrived)

	dissolved, err := r.DissolveExpired(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, dissolved, 2)
	assert.Equal(t, lapsed, dissolved[0].ID)
	assert.Equal(t, atDeadline, dissolved[1].ID)
	for _, d := range dissolved {
		assert.Equal(t, entity.ReservationDissolve, d.Status)
	}

	for id, want := range map[int64]entity.ReservationStatus{
		lapsed:     entity.ReservationDissolve,
		atDeadline: entity.ReservationDissolve,
		upcoming:   entity.ReservationActive,
		arrived:    entity.ReservationArrived,
	} {
		got, err := r.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, "reservation %d", id)
	}

	again, err := r.DissolveExpired(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestDissolveExpiredRespectsLimit(t *testing.T) {
	r, userID := newRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		hold(t, r, userID, now.Add(-time.Duration(i)*time.Minute), entity.ReservationActive)
	}

	first, err := r.DissolveExpired(ctx, now, 2)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	active, err := r.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	rest, err := r.DissolveExpired(ctx, now, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestTransitionGuardsCurrentStatus(t *testing.T) {
	r, userID := newRepo(t)
	ctx := context.Background()
	id := hold(t, r, userID, time.Now().UTC().Add(time.Hour), entity.ReservationActive)

	require.NoError(t, r.Transition(ctx, id, entity.ReservationActive, entity.ReservationArrived))
	assert.ErrorIs(t, r.Transition(ctx, id, entity.ReservationActive, entity.ReservationDissolve), ErrStaleState)

	_, err := r.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := r.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, entity.ReservationArrived, mine[0].Status)
}
