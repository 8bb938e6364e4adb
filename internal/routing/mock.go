package routing

import (
	"context"

	"lastmile/internal/model"
)

// Mock is a scriptable Resolver/Optimizer for tests and local runs
// without external providers.
type Mock struct {
	ResolveFunc  func(ctx context.Context, origin model.GeoPoint, stops []model.Stop) (model.RouteMetrics, error)
	OptimizeFunc func(ctx context.Context, origin model.GeoPoint, stops []model.Stop) ([]string, error)
}

// Resolve delegates to ResolveFunc; without one it synthesizes rough
// metrics from the planar path length so local runs stay usable.
func (m *Mock) Resolve(ctx context.Context, origin model.GeoPoint, stops []model.Stop) (model.RouteMetrics, error) {
	if len(stops) == 0 {
		return model.RouteMetrics{}, nil
	}
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, origin, stops)
	}
	const metersPerDegree = 111_000.0
	var dist float64
	prevLat, prevLng := origin.Lat, origin.Lng
	ids := make([]string, len(stops))
	for i, s := range stops {
		dLat := (s.Lat - prevLat) * metersPerDegree
		dLng := (s.Lng - prevLng) * metersPerDegree
		if dLat < 0 {
			dLat = -dLat
		}
		if dLng < 0 {
			dLng = -dLng
		}
		dist += dLat + dLng
		prevLat, prevLng = s.Lat, s.Lng
		ids[i] = s.ID
	}
	return model.RouteMetrics{
		DistanceMeters:  dist,
		DurationSeconds: int64(dist / 8), // ~30 km/h
		OrderedStopIDs:  ids,
	}, nil
}

// OptimizeOrder delegates to OptimizeFunc; without one it returns the
// input order unchanged.
func (m *Mock) OptimizeOrder(ctx context.Context, origin model.GeoPoint, stops []model.Stop) ([]string, error) {
	if m.OptimizeFunc != nil {
		return m.OptimizeFunc(ctx, origin, stops)
	}
	ids := make([]string, len(stops))
	for i, s := range stops {
		ids[i] = s.ID
	}
	return ids, nil
}
