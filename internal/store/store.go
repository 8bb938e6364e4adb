package store

import (
	"context"
	"errors"

	"lastmile/internal/model"
)

// Store is the persistence boundary for committed routes. The engine
// never assumes transactional atomicity across different routes; a
// single PatchRoute call is the only atomic unit.
type Store interface {
	// CreateRoute persists one committed route.
	CreateRoute(ctx context.Context, route model.CommittedRoute) error

	// GetRoute returns a route by id, or ErrNotFound.
	GetRoute(ctx context.Context, id string) (model.CommittedRoute, error)

	// ListRoutesByBatch returns all routes created for a batch.
	ListRoutesByBatch(ctx context.Context, batchID string) ([]model.CommittedRoute, error)

	// PatchRoute applies a partial update as a read-modify-write
	// guarded by the route version. Returns ErrConflict when a
	// concurrent writer got there first, ErrNotFound for unknown ids.
	PatchRoute(ctx context.Context, id string, expectedVersion int, patch model.RoutePatch) (model.CommittedRoute, error)
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("version conflict")
)
