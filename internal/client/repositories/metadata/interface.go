// Package metadata keeps the client's local state: the persisted session
// and the last identity used, as rows of a key/value table.
package metadata

import (
	"context"
)

// Repository reads and writes groups of keys in one statement each, so a
// session is saved, loaded or dropped as a unit.
type Repository interface {
	// Get returns nil for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetMany upserts every entry of values.
	SetMany(ctx context.Context, values map[string][]byte) error
	// GetMany returns the subset of keys that is present.
	GetMany(ctx context.Context, keys ...string) (map[string][]byte, error)
	Delete(ctx context.Context, keys ...string) error
}
