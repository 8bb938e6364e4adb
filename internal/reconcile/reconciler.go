// Package reconcile aligns committed routes with the upstream stop
// source after the batch has been edited elsewhere. Loose stops placed
// on a route out-of-band are folded into the route, stops whose orders
// were unlinked upstream are evicted, and the remainder becomes the
// session's unassigned pool.
package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"lastmile/internal/metrics"
	"lastmile/internal/model"
	"lastmile/internal/store"
	"lastmile/internal/upstream"
)

// SegmentPatch describes the mutation applied to one route.
type SegmentPatch struct {
	RouteID    string       `json:"routeId"`
	Stops      []model.Stop `json:"stops"`
	Unassigned []model.Stop `json:"unassigned"`
}

// Result summarizes one reconciliation pass.
type Result struct {
	// Unassigned is the deduplicated pool for the session: upstream
	// stops not on any route plus stops still awaiting manual fixes.
	Unassigned []model.Stop `json:"unassigned"`
	// Patched lists routes whose stop lists were rewritten this pass.
	Patched []SegmentPatch `json:"patched,omitempty"`
	// OrphanedOrders are order numbers evicted because upstream no
	// longer links them to this batch.
	OrphanedOrders []string `json:"orphanedOrders,omitempty"`
	// SkippedRoutes failed their patch and were left untouched; the
	// next pass will pick them up again.
	SkippedRoutes []string `json:"skippedRoutes,omitempty"`
}

// Reconciler runs reconciliation passes for dispatch batches.
type Reconciler struct {
	store  store.Store
	source upstream.StopSource
	counts upstream.CountCache
	log    zerolog.Logger
}

// New builds a Reconciler. counts may be nil when no side-channel
// cache is configured.
func New(st store.Store, source upstream.StopSource, counts upstream.CountCache, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: st, source: source, counts: counts, log: log.With().Str("component", "reconcile").Logger()}
}

// routePlan is the computed post-reconcile shape of one route.
type routePlan struct {
	route      model.CommittedRoute
	stops      []model.Stop // merged, pre-orphan-filter
	pooled     []model.Stop // invalid loose stops staying pooled
	mergedKeys *model.KeySet
}

// Reconcile runs one pass for the batch. It is idempotent: with no
// upstream change a second pass issues zero mutations. A patch failure
// on one route skips that route only; the rest of the pass proceeds.
func (r *Reconciler) Reconcile(ctx context.Context, batchID string) (Result, error) {
	routes, err := r.store.ListRoutesByBatch(ctx, batchID)
	if err != nil {
		return Result{}, fmt.Errorf("list routes: %w", err)
	}
	upstreamStops, err := r.source.GetLinkedStops(ctx, batchID)
	if err != nil {
		return Result{}, fmt.Errorf("linked stops: %w", err)
	}

	// Step 1+2: per route, fold valid loose stops into the route
	// unless their order number already rides on it.
	plans := make([]routePlan, 0, len(routes))
	for _, rt := range routes {
		plans = append(plans, mergeLooseStops(rt))
	}

	// Step 3: resolve current linkage for every order number we hold.
	orderNumbers := collectOrderNumbers(plans)
	linkage := map[string]string{}
	if len(orderNumbers) > 0 {
		linkage, err = r.source.GetOrderLinkage(ctx, orderNumbers)
		if err != nil {
			return Result{}, fmt.Errorf("order linkage: %w", err)
		}
	}
	orphaned := map[string]bool{}
	for _, no := range orderNumbers {
		if linkage[no] != batchID {
			orphaned[no] = true
		}
	}

	// Steps 2+3 persist as one atomic patch per route: merge and
	// orphan eviction land together or not at all for that route.
	var result Result
	assigned := model.NewKeySet()
	var pooledRemainder []model.Stop
	removed := 0

	for _, plan := range plans {
		finalStops, evicted := dropOrphans(plan.stops, orphaned)
		finalPooled, evictedPooled := dropOrphans(plan.pooled, orphaned)

		if stopsEqual(finalStops, plan.route.Stops) && stopsEqual(finalPooled, plan.route.UnassignedStops) {
			// Nothing changed for this route; no write, no count drift.
			addAll(assigned, finalStops)
			pooledRemainder = append(pooledRemainder, finalPooled...)
			continue
		}

		patch := model.RoutePatch{Stops: &finalStops, UnassignedStops: &finalPooled}
		if _, err := r.store.PatchRoute(ctx, plan.route.ID, plan.route.Version, patch); err != nil {
			// Skip this route for the rest of the pass: its merge did
			// not land, so eviction and counting must not proceed
			// either. Other routes are unaffected.
			r.log.Warn().Err(err).Str("route", plan.route.ID).Msg("route patch failed, skipping this pass")
			metrics.ReconcileSkips.Inc()
			result.SkippedRoutes = append(result.SkippedRoutes, plan.route.ID)
			addAll(assigned, plan.route.Stops)
			pooledRemainder = append(pooledRemainder, plan.route.UnassignedStops...)
			continue
		}

		mergedCount := len(plan.stops) - len(plan.route.Stops)
		if mergedCount > 0 {
			metrics.ReconcileMerges.Add(float64(mergedCount))
		}
		removed += evicted + evictedPooled
		metrics.ReconcileOrphans.Add(float64(evicted + evictedPooled))

		result.Patched = append(result.Patched, SegmentPatch{RouteID: plan.route.ID, Stops: finalStops, Unassigned: finalPooled})
		addAll(assigned, finalStops)
		pooledRemainder = append(pooledRemainder, finalPooled...)
	}

	for no := range orphaned {
		result.OrphanedOrders = append(result.OrphanedOrders, no)
	}

	// The upstream sync keeps a cached stop total per batch; evictions
	// are reflected there, and this side channel is ours to update.
	if removed > 0 && r.counts != nil {
		if err := r.counts.DecrementStopCount(ctx, batchID, removed); err != nil {
			r.log.Warn().Err(err).Int("removed", removed).Msg("stop count decrement failed")
		}
	}

	// Steps 4+5: upstream stops not riding any route, then the pooled
	// remainder, deduplicated by id first and order number second with
	// upstream copies taking precedence.
	var unassigned []model.Stop
	seen := model.NewKeySet()
	for _, s := range upstreamStops {
		// The stop listing and the order linkage are separate eventually
		// consistent reads; a stale listing can still carry a copy of an
		// order the linkage says is gone. Eviction wins.
		if s.OrderNumber != "" && orphaned[s.OrderNumber] {
			continue
		}
		if assigned.Has(s) || seen.Has(s) {
			continue
		}
		seen.Add(s)
		unassigned = append(unassigned, s)
	}
	for _, s := range pooledRemainder {
		if s.OrderNumber != "" && orphaned[s.OrderNumber] {
			continue
		}
		if assigned.Has(s) || seen.Has(s) {
			continue
		}
		seen.Add(s)
		unassigned = append(unassigned, s)
	}
	result.Unassigned = unassigned
	return result, nil
}

// mergeLooseStops folds a route's geocoded loose stops into its stop
// list, deduplicating by order number, and keeps the rest pooled for
// manual resolution.
func mergeLooseStops(rt model.CommittedRoute) routePlan {
	keys := model.NewKeySet()
	for _, s := range rt.Stops {
		keys.Add(s)
	}
	stops := append([]model.Stop(nil), rt.Stops...)
	var pooled []model.Stop
	for _, s := range rt.UnassignedStops {
		if !s.HasCoordinates() {
			pooled = append(pooled, s)
			continue
		}
		// Same order number already on the route means the loose copy
		// is a re-geocoded duplicate, not a new delivery.
		if keys.Has(s) {
			continue
		}
		keys.Add(s)
		stops = append(stops, s)
	}
	return routePlan{route: rt, stops: stops, pooled: pooled, mergedKeys: keys}
}

func collectOrderNumbers(plans []routePlan) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range plans {
		for _, s := range p.stops {
			if s.OrderNumber != "" && !seen[s.OrderNumber] {
				seen[s.OrderNumber] = true
				out = append(out, s.OrderNumber)
			}
		}
		for _, s := range p.pooled {
			if s.OrderNumber != "" && !seen[s.OrderNumber] {
				seen[s.OrderNumber] = true
				out = append(out, s.OrderNumber)
			}
		}
	}
	return out
}

func dropOrphans(stops []model.Stop, orphaned map[string]bool) ([]model.Stop, int) {
	out := make([]model.Stop, 0, len(stops))
	evicted := 0
	for _, s := range stops {
		if s.OrderNumber != "" && orphaned[s.OrderNumber] {
			evicted++
			continue
		}
		out = append(out, s)
	}
	return out, evicted
}

func addAll(ks *model.KeySet, stops []model.Stop) {
	for _, s := range stops {
		ks.Add(s)
	}
}

func stopsEqual(a, b []model.Stop) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].OrderNumber != b[i].OrderNumber {
			return false
		}
	}
	return true
}
