// Package storage provides the ordered key/value persistence used by the
// event queue and the settings cache.
package storage

import (
	"context"
	"sort"
)

type Storage interface {
	Length(ctx context.Context) (int, error)
	Keys(ctx context.Context) ([]string, error)
	// Key returns the key at index in Keys order.
	Key(ctx context.Context, index int) (string, bool, error)
	// GetItem reports ok=false when the key does not exist.
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

func keyAt(keys []string, index int) (string, bool) {
	if index < 0 || index >= len(keys) {
		return "", false
	}
	return keys[index], true
}

func sortedCopy(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	sort.Strings(out)
	return out
}
