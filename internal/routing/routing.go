// Package routing wraps the external routing provider and sequence
// optimizer behind narrow interfaces. Both are I/O boundaries: calls
// are idempotent and never touch persisted state.
package routing

import (
	"context"

	"lastmile/internal/model"
)

// Resolver computes real-world metrics for a stop sequence. The
// provider preserves the requested order; optimization is a separate
// collaborator (Optimizer).
type Resolver interface {
	// Resolve returns metrics for visiting stops in the given order
	// starting from origin. An empty stop list yields zero-value
	// metrics without contacting the provider.
	Resolve(ctx context.Context, origin model.GeoPoint, stops []model.Stop) (model.RouteMetrics, error)
}

// Optimizer returns a travel-minimizing permutation of stop ids. The
// result may omit ids; callers must treat omissions defensively and
// never drop a stop.
type Optimizer interface {
	OptimizeOrder(ctx context.Context, origin model.GeoPoint, stops []model.Stop) ([]string, error)
}
