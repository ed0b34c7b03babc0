// Package store persists experiments across three tiers with deterministic
// fallback: a remote Postgres store, a durable local SQLite cache, and a
// volatile in-process map. The remote tier is authoritative when reachable;
// the local tiers are a durability net, not a second source of truth.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/coterie-labs/experiment-console/internal/model"
)

// ErrNotFound is returned by a tier when no record exists under the probed
// key. It is a normal miss, not a failure: the caller tries the next tier.
var ErrNotFound = eris.New("store: experiment not found")

// Tier is the uniform CRUD contract each storage tier implements. Keys are
// exact; identifier aliasing and prefix probing live above the tiers in
// FallbackStore.
type Tier interface {
	// Name identifies the tier in degradation logs.
	Name() string
	// Get returns the record stored under exactly id, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.Experiment, error)
	// GetAll lists every record in the tier. Only the remote tier
	// guarantees an order (most recently updated first).
	GetAll(ctx context.Context) ([]model.Experiment, error)
	// Put inserts or replaces the record under its ID.
	Put(ctx context.Context, exp model.Experiment) error
	// Delete removes the record under exactly id. Deleting a missing
	// record is not an error.
	Delete(ctx context.Context, id string) error
}
