// Package objectstore abstracts the primary cloud object store.
//
// Keys are flat strings; "/" is treated as a directory separator by List,
// which returns the objects directly under a prefix plus the sub-prefixes
// one level down. Walk and DeletePrefix build recursive traversals on top.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Object describes a stored object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Listing is one level of a delimited listing.
type Listing struct {
	Objects  []Object
	Prefixes []string
}

// Store is the contract shared by the S3 and in-memory implementations.
// Get, GetFresh and Delete report a missing key as common.ErrorNotFound
// (Delete only where the backend can tell).
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// GetFresh reads key bypassing any intermediate cache.
	GetFresh(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) (Listing, error)
	// URL returns a time-limited download URL for key.
	URL(ctx context.Context, key string) (string, error)
}

// Walk visits every object under prefix, depth first, in key order.
func Walk(ctx context.Context, s Store, prefix string, fn func(Object) error) error {
	listing, err := s.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list %s: %w", prefix, err)
	}

	sort.Slice(listing.Objects, func(i, j int) bool { return listing.Objects[i].Key < listing.Objects[j].Key })
	for _, obj := range listing.Objects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(obj); err != nil {
			return err
		}
	}

	sort.Strings(listing.Prefixes)
	for _, p := range listing.Prefixes {
		if err := Walk(ctx, s, p, fn); err != nil {
			return err
		}
	}
	return nil
}

// DeletePrefix removes every object under prefix and returns how many were
// deleted. It keeps going after a failed delete and joins the errors.
func DeletePrefix(ctx context.Context, s Store, prefix string) (int, error) {
	var keys []string
	if err := Walk(ctx, s, prefix, func(o Object) error {
		keys = append(keys, o.Key)
		return nil
	}); err != nil {
		return 0, err
	}

	var (
		deleted int
		errs    []error
	)
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", k, err))
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}
