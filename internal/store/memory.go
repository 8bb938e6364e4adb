package store

import (
	"context"
	"sync"

	"lastmile/internal/model"
)

// Memory is an in-memory store used when no DATABASE_URL is set and in
// tests.
type Memory struct {
	mu      sync.Mutex
	routes  map[string]model.CommittedRoute
	byBatch map[string][]string // batchId -> route ids, insertion order
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		routes:  map[string]model.CommittedRoute{},
		byBatch: map[string][]string{},
	}
}

func (m *Memory) CreateRoute(_ context.Context, route model.CommittedRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if route.Version == 0 {
		route.Version = 1
	}
	m.routes[route.ID] = cloneRoute(route)
	m.byBatch[route.BatchID] = append(m.byBatch[route.BatchID], route.ID)
	return nil
}

func (m *Memory) GetRoute(_ context.Context, id string) (model.CommittedRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return model.CommittedRoute{}, ErrNotFound
	}
	return cloneRoute(r), nil
}

func (m *Memory) ListRoutesByBatch(_ context.Context, batchID string) ([]model.CommittedRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byBatch[batchID]
	out := make([]model.CommittedRoute, 0, len(ids))
	for _, id := range ids {
		if r, ok := m.routes[id]; ok {
			out = append(out, cloneRoute(r))
		}
	}
	return out, nil
}

func (m *Memory) PatchRoute(_ context.Context, id string, expectedVersion int, patch model.RoutePatch) (model.CommittedRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return model.CommittedRoute{}, ErrNotFound
	}
	if r.Version != expectedVersion {
		return model.CommittedRoute{}, ErrConflict
	}
	applyPatch(&r, patch)
	r.Version++
	m.routes[id] = cloneRoute(r)
	return cloneRoute(r), nil
}

func applyPatch(r *model.CommittedRoute, p model.RoutePatch) {
	if p.Stops != nil {
		r.Stops = append([]model.Stop(nil), (*p.Stops)...)
	}
	if p.UnassignedStops != nil {
		r.UnassignedStops = append([]model.Stop(nil), (*p.UnassignedStops)...)
	}
	if p.DistanceMeters != nil {
		r.DistanceMeters = *p.DistanceMeters
	}
	if p.DurationSeconds != nil {
		r.DurationSeconds = *p.DurationSeconds
	}
	if p.Polyline != nil {
		r.Polyline = append([]byte(nil), (*p.Polyline)...)
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.DriverID != nil {
		r.DriverID = *p.DriverID
	}
	if p.Driver != nil {
		d := *p.Driver
		r.Driver = &d
	}
}

func cloneRoute(r model.CommittedRoute) model.CommittedRoute {
	out := r
	out.Stops = append([]model.Stop(nil), r.Stops...)
	out.UnassignedStops = append([]model.Stop(nil), r.UnassignedStops...)
	out.Polyline = append([]byte(nil), r.Polyline...)
	if r.Driver != nil {
		d := *r.Driver
		out.Driver = &d
	}
	return out
}
