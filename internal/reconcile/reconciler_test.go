package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lastmile/internal/model"
	"lastmile/internal/store"
	"lastmile/internal/upstream"
)

type fakeSource struct {
	stops   []model.Stop
	linkage map[string]string
}

func (f *fakeSource) GetLinkedStops(context.Context, string) ([]model.Stop, error) {
	return f.stops, nil
}

func (f *fakeSource) GetOrderLinkage(_ context.Context, orderNumbers []string) (map[string]string, error) {
	out := map[string]string{}
	for _, no := range orderNumbers {
		out[no] = f.linkage[no]
	}
	return out, nil
}

// patchCounter counts PatchRoute calls and can fail selected routes.
type patchCounter struct {
	store.Store
	patches int
	failFor map[string]bool
}

func (p *patchCounter) PatchRoute(ctx context.Context, id string, version int, patch model.RoutePatch) (model.CommittedRoute, error) {
	if p.failFor[id] {
		return model.CommittedRoute{}, errors.New("simulated write failure")
	}
	p.patches++
	return p.Store.PatchRoute(ctx, id, version, patch)
}

func geo(id, order string, lat, lng float64) model.Stop {
	return model.Stop{GeoPoint: model.GeoPoint{ID: id, Lat: lat, Lng: lng}, OrderNumber: order}
}

func seed(t *testing.T, mem *store.Memory, r model.CommittedRoute) {
	t.Helper()
	require.NoError(t, mem.CreateRoute(context.Background(), r))
}

const batch = "batch-1"

func linked(orders ...string) map[string]string {
	m := map[string]string{}
	for _, o := range orders {
		m[o] = batch
	}
	return m
}

func TestReconcileMergesLooseStops(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, model.CommittedRoute{
		ID: "r1", BatchID: batch, Status: model.RouteDispatched,
		Stops: []model.Stop{geo("s1", "1001", 1, 1)},
		UnassignedStops: []model.Stop{
			geo("s2", "1002", 2, 2), // valid, new: merge
			geo("s3", "1001", 3, 3), // valid, duplicate order: drop
			geo("s4", "1004", 0, 0), // no coordinates: stays pooled
		},
	})
	src := &fakeSource{
		stops:   []model.Stop{geo("s1", "1001", 1, 1), geo("s5", "1005", 5, 5)},
		linkage: linked("1001", "1002", "1004", "1005"),
	}
	counts := upstream.NewMemoryCounts()

	res, err := New(mem, src, counts, zerolog.Nop()).Reconcile(context.Background(), batch)
	require.NoError(t, err)

	got, err := mem.GetRoute(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, got.Stops, 2, "merged stop missing: %+v", got.Stops)
	assert.Equal(t, "s2", got.Stops[1].ID)
	require.Len(t, got.UnassignedStops, 1)
	assert.Equal(t, "s4", got.UnassignedStops[0].ID)

	// Final pool: the upstream-only stop plus the invalid pooled one.
	ids := map[string]bool{}
	for _, s := range res.Unassigned {
		ids[s.ID] = true
	}
	assert.True(t, ids["s5"], "upstream-only stop missing from pool: %+v", res.Unassigned)
	assert.True(t, ids["s4"], "invalid pooled stop missing from pool: %+v", res.Unassigned)
	assert.Len(t, res.Unassigned, 2)
	assert.Equal(t, 0, counts.Count(batch), "no orphans, count must not move")
}

func TestReconcileEvictsOrphanedOrder(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, model.CommittedRoute{
		ID: "r1", BatchID: batch, Status: model.RouteDispatched,
		Stops: []model.Stop{geo("s1", "123", 1, 1), geo("s2", "456", 2, 2)},
	})
	// Order 123 was unlinked from the batch upstream.
	src := &fakeSource{
		stops:   []model.Stop{geo("s2", "456", 2, 2)},
		linkage: linked("456"),
	}
	counts := upstream.NewMemoryCounts()

	res, err := New(mem, src, counts, zerolog.Nop()).Reconcile(context.Background(), batch)
	require.NoError(t, err)

	got, _ := mem.GetRoute(context.Background(), "r1")
	require.Len(t, got.Stops, 1)
	assert.Equal(t, "s2", got.Stops[0].ID)

	for _, s := range res.Unassigned {
		assert.NotEqual(t, "123", s.OrderNumber, "orphaned stop must not resurface in the pool")
	}
	assert.Contains(t, res.OrphanedOrders, "123")
	assert.Equal(t, -1, counts.Count(batch), "eviction must decrement the cached stop count")
}

func TestReconcileStaleUpstreamCopyOfOrphanStaysOut(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, model.CommittedRoute{
		ID: "r1", BatchID: batch, Status: model.RouteDispatched,
		Stops: []model.Stop{geo("s1", "123", 1, 1), geo("s2", "456", 2, 2)},
	})
	// Order 123 was unlinked, but the stop listing is lagging and still
	// carries a re-geocoded copy of it.
	src := &fakeSource{
		stops:   []model.Stop{geo("s2", "456", 2, 2), geo("s1b", "123", 1, 1)},
		linkage: linked("456"),
	}

	res, err := New(mem, src, upstream.NewMemoryCounts(), zerolog.Nop()).Reconcile(context.Background(), batch)
	require.NoError(t, err)

	got, _ := mem.GetRoute(context.Background(), "r1")
	require.Len(t, got.Stops, 1)
	assert.Equal(t, "s2", got.Stops[0].ID)

	assert.Contains(t, res.OrphanedOrders, "123")
	for _, s := range res.Unassigned {
		assert.NotEqual(t, "123", s.OrderNumber,
			"orphaned order resurfaced in unassigned via the stale upstream listing: %+v", s)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, model.CommittedRoute{
		ID: "r1", BatchID: batch, Status: model.RouteDispatched,
		Stops:           []model.Stop{geo("s1", "1001", 1, 1)},
		UnassignedStops: []model.Stop{geo("s2", "1002", 2, 2), geo("s3", "1003", 0, 0)},
	})
	src := &fakeSource{
		stops:   []model.Stop{geo("s1", "1001", 1, 1), geo("s9", "1009", 9, 9)},
		linkage: linked("1001", "1002", "1003", "1009"),
	}
	pc := &patchCounter{Store: mem}
	rec := New(pc, src, upstream.NewMemoryCounts(), zerolog.Nop())

	first, err := rec.Reconcile(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, pc.patches, "first pass should patch the route once")

	second, err := rec.Reconcile(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, pc.patches, "second pass with unchanged upstream must issue no mutations")
	assert.Empty(t, second.Patched)

	require.Len(t, second.Unassigned, len(first.Unassigned))
	for i := range first.Unassigned {
		assert.Equal(t, first.Unassigned[i].ID, second.Unassigned[i].ID)
	}
}

func TestReconcilePerSegmentFailureIsolation(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, model.CommittedRoute{
		ID: "r1", BatchID: batch, Status: model.RouteDispatched,
		Stops:           []model.Stop{geo("s1", "1001", 1, 1)},
		UnassignedStops: []model.Stop{geo("s2", "1002", 2, 2)},
	})
	seed(t, mem, model.CommittedRoute{
		ID: "r2", BatchID: batch, Status: model.RouteDispatched,
		Stops:           []model.Stop{geo("s3", "1003", 3, 3)},
		UnassignedStops: []model.Stop{geo("s4", "1004", 4, 4)},
	})
	src := &fakeSource{linkage: linked("1001", "1002", "1003", "1004")}
	pc := &patchCounter{Store: mem, failFor: map[string]bool{"r1": true}}

	res, err := New(pc, src, upstream.NewMemoryCounts(), zerolog.Nop()).Reconcile(context.Background(), batch)
	require.NoError(t, err, "one failing segment must not abort the pass")

	assert.Equal(t, []string{"r1"}, res.SkippedRoutes)
	assert.Equal(t, 1, pc.patches, "r2 should still be patched")

	r2, _ := mem.GetRoute(context.Background(), "r2")
	require.Len(t, r2.Stops, 2)

	// r1's merge did not land, so its loose stop is still pooled.
	r1, _ := mem.GetRoute(context.Background(), "r1")
	require.Len(t, r1.Stops, 1)
	ids := map[string]bool{}
	for _, s := range res.Unassigned {
		ids[s.ID] = true
	}
	assert.True(t, ids["s2"], "unmerged loose stop must remain visible in the pool")
}

func TestReconcileUpstreamCopyWinsOnConflict(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, model.CommittedRoute{
		ID: "r1", BatchID: batch, Status: model.RouteDispatched,
		Stops:           []model.Stop{geo("s1", "1001", 1, 1)},
		UnassignedStops: []model.Stop{geo("old", "2002", 0, 0)},
	})
	// Upstream re-geocoded order 2002 under a fresh id.
	src := &fakeSource{
		stops:   []model.Stop{geo("fresh", "2002", 7, 7)},
		linkage: linked("1001", "2002"),
	}

	res, err := New(mem, src, upstream.NewMemoryCounts(), zerolog.Nop()).Reconcile(context.Background(), batch)
	require.NoError(t, err)

	require.Len(t, res.Unassigned, 1, "same logical delivery must appear once: %+v", res.Unassigned)
	assert.Equal(t, "fresh", res.Unassigned[0].ID, "upstream copy takes precedence")
}
