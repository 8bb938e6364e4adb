// Package upstream talks to the externally-synced stop source that
// feeds dispatch batches. Its reads are eventually consistent: stops
// can be added, removed, or re-linked elsewhere while a route session
// is open, and the reconciler aligns against whatever this package
// reports at the time of the pass.
package upstream

import (
	"context"

	"lastmile/internal/model"
)

// StopSource exposes the upstream "orders" collection for a batch.
type StopSource interface {
	// GetLinkedStops returns every stop currently linked to the batch.
	GetLinkedStops(ctx context.Context, batchID string) ([]model.Stop, error)

	// GetOrderLinkage maps each order number to the batch it is linked
	// to, or "" when the order is no longer linked anywhere.
	GetOrderLinkage(ctx context.Context, orderNumbers []string) (map[string]string, error)
}

// CountCache is the side channel holding the upstream's cached total
// stop count per batch. The reconciler owns decrements when it evicts
// orphaned stops.
type CountCache interface {
	DecrementStopCount(ctx context.Context, batchID string, n int) error
}
