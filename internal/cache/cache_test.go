package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (m *mapStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestNoopStoreAlwaysMisses(t *testing.T) {
	store := NewNoop()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.NoError(t, store.Delete(ctx, "k"))
}

func TestJSONHelpers(t *testing.T) {
	type snapshot struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	store := &mapStore{data: map[string][]byte{}}
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, store, OrderKey(9), snapshot{ID: 9, Status: "Paid"}, time.Minute))
	got, err := GetJSON[snapshot](ctx, store, OrderKey(9))
	require.NoError(t, err)
	assert.Equal(t, "Paid", got.Status)

	_, err = GetJSON[snapshot](ctx, store, OrderKey(10))
	assert.ErrorIs(t, err, ErrCacheMiss)

	store.data["bad"] = []byte("{")
	_, err = GetJSON[snapshot](ctx, store, "bad")
	assert.Error(t, err)

	_, err = GetJSON[snapshot](ctx, nil, "x")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "tableside:orders:3", OrderKey(3))
	assert.Equal(t, "tableside:inventory:4", InventoryKey(4))
}
