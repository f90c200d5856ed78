// Package kv provides the local key-value cache that backs record stores.
//
// # Overview
//
// Values are opaque bytes (JSON-serialized envelopes in practice) keyed by
// strings such as "carekeeper-meal-records-1751693499371". A Set replaces
// the whole value in one statement, so readers never observe a partially
// written envelope.
//
// Two SQL dialects share one implementation (SQLRepository): SQLite via
// modernc.org/sqlite for a single device, and PostgreSQL via pgx for a
// household cache shared between devices. Open selects the driver, applies
// embedded goose migrations, and returns a ready Repository.
//
// Typical Usage
//
//	store, err := kv.Open(ctx, "sqlite", "carekeeper.db")
//	_ = store.Set(ctx, key, data)
//	data, _ := store.Get(ctx, key) // (nil, nil) when absent
//	all, _ := store.List(ctx, "carekeeper-meal-records-")
package kv
