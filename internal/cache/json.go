package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetJSON loads key and decodes it into a new T.
func GetJSON[T any](ctx context.Context, store Store, key string) (*T, error) {
	if store == nil {
		return nil, ErrCacheMiss
	}
	raw, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return out, nil
}

// SetJSON encodes value and stores it under key.
func SetJSON(ctx context.Context, store Store, key string, value any, ttl time.Duration) error {
	if store == nil || value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	return store.Set(ctx, key, raw, ttl)
}

// OrderKey is the cache key for an order snapshot.
func OrderKey(id int64) string {
	return fmt.Sprintf("tableside:orders:%d", id)
}

// InventoryKey is the cache key for an inventory item.
func InventoryKey(id int64) string {
	return fmt.Sprintf("tableside:inventory:%d", id)
}
