package reservation

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/tableside/internal/auth"
	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/entity"
	repo "github.com/Additional-Code/tableside/internal/repository/reservation"
	"github.com/Additional-Code/tableside/pkg/errorbank"
)

type memStore struct {
	mu   sync.Mutex
	rows map[int64]entity.Reservation
	next int64
}

func newMemStore() *memStore { return &memStore{rows: map[int64]entity.Reservation{}} }

func (m *memStore) Create(_ context.Context, r *entity.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	r.ID = m.next
	m.rows[r.ID] = *r
	return nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*entity.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) ListByUser(_ context.Context, userID int64) ([]entity.Reservation, error) {
	return m.filter(func(r entity.Reservation) bool { return r.UserID == userID }), nil
}

func (m *memStore) ListActive(context.Context) ([]entity.Reservation, error) {
	return m.filter(func(r entity.Reservation) bool { return r.Status == entity.ReservationActive }), nil
}

func (m *memStore) filter(keep func(entity.Reservation) bool) []entity.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Reservation
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) Transition(_ context.Context, id int64, from, to entity.ReservationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Status != from {
		return repo.ErrStaleState
	}
	r.Status = to
	m.rows[id] = r
	return nil
}

func (m *memStore) DissolveExpired(_ context.Context, now time.Time, limit int) ([]entity.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.Reservation
	for id, r := range m.rows {
		if len(out) == limit {
			break
		}
		if r.Status == entity.ReservationActive && !now.Before(r.ExpiresAt) {
			r.Status = entity.ReservationDissolve
			m.rows[id] = r
			out = append(out, r)
		}
	}
	return out, nil
}

type notifierStub struct{ users []int64 }

func (n *notifierStub) Notify(_ context.Context, userID int64, msg, _ string) (*entity.Notification, error) {
	n.users = append(n.users, userID)
	return &entity.Notification{UserID: userID, Message: msg}, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

var (
	owner    = auth.Principal{UserID: 5, Role: entity.RoleClient}
	stranger = auth.Principal{UserID: 6, Role: entity.RoleClient}
	host     = auth.Principal{UserID: 1, Role: entity.RoleWorker}
)

func newService(t *testing.T, batch int) (*Service, *memStore, *notifierStub, *clock) {
	t.Helper()
	store := newMemStore()
	notifier := &notifierStub{}
	clk := &clock{t: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	svc := New(store, notifier, nil, nil, config.Reservation{
		HoldDuration:  15 * time.Minute,
		SweepInterval: time.Second,
		SweepBatch:    batch,
	}, zaptest.NewLogger(t))
	svc.now = clk.now
	return svc, store, notifier, clk
}

func TestCreateSetsServerSideExpiry(t *testing.T) {
	svc, _, _, clk := newService(t, 10)
	at := clk.t.Add(time.Hour)

	res, err := svc.Create(context.Background(), owner.UserID, CreateInput{PartySize: 4, ReservedFor: at})
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationActive, res.Status)
	assert.Equal(t, at.Add(15*time.Minute), res.ExpiresAt)

	_, err = svc.Create(context.Background(), owner.UserID, CreateInput{PartySize: 4, ReservedFor: clk.t.Add(-time.Minute)})
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
	_, err = svc.Create(context.Background(), owner.UserID, CreateInput{PartySize: 0, ReservedFor: at})
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
}

func TestSweeperDissolvesWithoutAnyClient(t *testing.T) {
	svc, store, notifier, clk := newService(t, 2)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, owner.UserID, CreateInput{PartySize: 2, ReservedFor: clk.t.Add(time.Duration(i+1) * time.Minute)})
		require.NoError(t, err)
	}
	late, err := svc.Create(ctx, owner.UserID, CreateInput{PartySize: 2, ReservedFor: clk.t.Add(3 * time.Hour)})
	require.NoError(t, err)

	clk.t = clk.t.Add(time.Hour)
	job := svc.SweepJob()
	assert.Equal(t, time.Second, job.Interval)
	require.NoError(t, job.Run(ctx))

	dissolved := 0
	for _, r := range store.filter(func(entity.Reservation) bool { return true }) {
		if r.Status == entity.ReservationDissolve {
			dissolved++
		}
	}
	assert.Equal(t, 5, dissolved)
	assert.Len(t, notifier.users, 5)

	stillLive, err := store.GetByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationActive, stillLive.Status)

	again, err := svc.DissolveExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestReadsDissolveLazily(t *testing.T) {
	svc, store, _, clk := newService(t, 10)
	ctx := context.Background()
	res, err := svc.Create(ctx, owner.UserID, CreateInput{PartySize: 2, ReservedFor: clk.t.Add(time.Minute)})
	require.NoError(t, err)

	clk.t = clk.t.Add(16 * time.Minute)
	got, err := svc.Get(ctx, owner, res.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationDissolve, got.Status)

	stored, _ := store.GetByID(ctx, res.ID)
	assert.Equal(t, entity.ReservationDissolve, stored.Status)

	_, err = svc.MarkArrived(ctx, res.ID)
	assert.True(t, errorbank.IsKind(err, errorbank.KindUnprocessableEntity))

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestArrivalAndDissolveRules(t *testing.T) {
	svc, _, _, clk := newService(t, 10)
	ctx := context.Background()
	a, _ := svc.Create(ctx, owner.UserID, CreateInput{PartySize: 2, ReservedFor: clk.t.Add(time.Hour)})
	b, _ := svc.Create(ctx, owner.UserID, CreateInput{PartySize: 2, ReservedFor: clk.t.Add(time.Hour)})

	arrived, err := svc.MarkArrived(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationArrived, arrived.Status)

	_, err = svc.Dissolve(ctx, owner, a.ID)
	assert.True(t, errorbank.IsKind(err, errorbank.KindUnprocessableEntity))

	_, err = svc.Dissolve(ctx, stranger, b.ID)
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))

	dissolved, err := svc.Dissolve(ctx, host, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationDissolve, dissolved.Status)

	again, err := svc.Dissolve(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationDissolve, again.Status)

	mine, err := svc.ListMine(ctx, owner.UserID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
