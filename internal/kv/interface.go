package kv

import "context"

// Repository is a string-keyed byte store.
type Repository interface {
	// Get returns (nil, nil) when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set inserts or replaces the value of key.
	Set(ctx context.Context, key string, value []byte) error

	// SetMany replaces several keys atomically.
	SetMany(ctx context.Context, values map[string][]byte) error

	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every pair whose key starts with prefix.
	List(ctx context.Context, prefix string) (map[string][]byte, error)

	// Clear removes all keys.
	Clear(ctx context.Context) error
}
