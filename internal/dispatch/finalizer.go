// Package dispatch commits finished route segments as dispatched
// routes and hands them to persistence.
package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"lastmile/internal/metrics"
	"lastmile/internal/model"
	"lastmile/internal/store"
)

// EventFunc receives commit notifications. May be nil.
type EventFunc func(event string, data map[string]any)

// Finalizer validates driver assignments and persists committed routes.
type Finalizer struct {
	store store.Store
	log   zerolog.Logger
	emit  EventFunc
}

// New builds a Finalizer.
func New(st store.Store, log zerolog.Logger, emit EventFunc) *Finalizer {
	return &Finalizer{store: st, log: log.With().Str("component", "dispatch").Logger(), emit: emit}
}

// Commit turns each non-empty segment into one dispatched route.
// Validation is all-or-nothing: if any non-empty segment lacks a
// driver the commit is rejected before a single write, and the error
// names every offending segment. Writes for the batch then run
// concurrently; a partial external failure is reported, never
// swallowed: the returned routes are the ones that were persisted and
// the error carries the first failure plus the success count.
func (f *Finalizer) Commit(ctx context.Context, batchID string, segments []model.RouteSegment, assignments map[string]model.DriverInfo) ([]model.CommittedRoute, error) {
	var missing []string
	var toCommit []model.RouteSegment
	for _, seg := range segments {
		if len(seg.Stops) == 0 {
			continue
		}
		if d, ok := assignments[seg.Key]; !ok || d.ID == "" {
			missing = append(missing, seg.Key)
			continue
		}
		toCommit = append(toCommit, seg)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &model.MissingDriverError{SegmentKeys: missing}
	}
	if len(toCommit) == 0 {
		return nil, nil
	}

	routes := make([]model.CommittedRoute, len(toCommit))
	for i, seg := range toCommit {
		driver := assignments[seg.Key]
		routes[i] = model.CommittedRoute{
			ID:              "rt_" + uuid.NewString(),
			Code:            seg.Name,
			BatchID:         batchID,
			Stops:           seg.Stops,
			DistanceMeters:  seg.DistanceMeters,
			DurationSeconds: seg.DurationSeconds,
			Polyline:        seg.Polyline,
			DriverID:        driver.ID,
			Driver:          &driver,
			Status:          model.RouteDispatched,
			Version:         1,
		}
	}

	errs := make([]error, len(routes))
	var wg sync.WaitGroup
	for i := range routes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.store.CreateRoute(ctx, routes[i])
		}(i)
	}
	wg.Wait()

	var committed []model.CommittedRoute
	var firstErr error
	for i, err := range errs {
		if err != nil {
			metrics.RoutesCommitted.WithLabelValues("error").Inc()
			f.log.Error().Err(err).Str("route", routes[i].ID).Msg("route write failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.RoutesCommitted.WithLabelValues("ok").Inc()
		committed = append(committed, routes[i])
		if f.emit != nil {
			f.emit("route.dispatched", map[string]any{
				"routeId":  routes[i].ID,
				"batchId":  batchID,
				"driverId": routes[i].DriverID,
				"stops":    len(routes[i].Stops),
			})
		}
	}
	if firstErr != nil {
		return committed, &model.PartialCommitError{Succeeded: len(committed), Total: len(routes), Err: firstErr}
	}
	return committed, nil
}
