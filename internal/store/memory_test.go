package store

import (
	"context"
	"errors"
	"testing"

	"lastmile/internal/model"
)

func seedRoute(t *testing.T, m *Memory, id, batch string) model.CommittedRoute {
	t.Helper()
	r := model.CommittedRoute{
		ID:      id,
		BatchID: batch,
		Code:    "R-" + id,
		Status:  model.RouteDispatched,
		Stops: []model.Stop{
			{GeoPoint: model.GeoPoint{ID: "s1", Lat: 1, Lng: 1}, OrderNumber: "1001"},
		},
	}
	if err := m.CreateRoute(context.Background(), r); err != nil {
		t.Fatalf("create: %v", err)
	}
	return r
}

func TestMemoryCreateGetList(t *testing.T) {
	m := NewMemory()
	seedRoute(t, m, "r1", "b1")
	seedRoute(t, m, "r2", "b1")
	seedRoute(t, m, "r3", "b2")

	got, err := m.GetRoute(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 || got.Code != "R-r1" {
		t.Fatalf("unexpected route: %+v", got)
	}

	list, err := m.ListRoutesByBatch(context.Background(), "b1")
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %v, %d routes", err, len(list))
	}

	if _, err := m.GetRoute(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryPatchVersionGuard(t *testing.T) {
	m := NewMemory()
	seedRoute(t, m, "r1", "b1")

	stops := []model.Stop{
		{GeoPoint: model.GeoPoint{ID: "s1", Lat: 1, Lng: 1}},
		{GeoPoint: model.GeoPoint{ID: "s2", Lat: 2, Lng: 2}},
	}
	patched, err := m.PatchRoute(context.Background(), "r1", 1, model.RoutePatch{Stops: &stops})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if patched.Version != 2 || len(patched.Stops) != 2 {
		t.Fatalf("unexpected patched route: %+v", patched)
	}

	// Stale version loses.
	if _, err := m.PatchRoute(context.Background(), "r1", 1, model.RoutePatch{Stops: &stops}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMemoryPatchDoesNotAliasCallerSlices(t *testing.T) {
	m := NewMemory()
	seedRoute(t, m, "r1", "b1")

	stops := []model.Stop{{GeoPoint: model.GeoPoint{ID: "s9", Lat: 9, Lng: 9}}}
	if _, err := m.PatchRoute(context.Background(), "r1", 1, model.RoutePatch{Stops: &stops}); err != nil {
		t.Fatalf("patch: %v", err)
	}
	stops[0].ID = "mutated"

	got, _ := m.GetRoute(context.Background(), "r1")
	if got.Stops[0].ID != "s9" {
		t.Fatalf("store aliased caller slice: %+v", got.Stops)
	}
}
