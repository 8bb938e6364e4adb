// Package partition groups geocoded stops into balanced clusters, one
// per driver, using farthest-point seeding plus iterative centroid
// refinement. Distances are planar over lat/lng, which is within
// tolerance at city scale and keeps the inner loop cheap.
package partition

import (
	"math"
	"math/rand"
	"time"

	"lastmile/internal/metrics"
	"lastmile/internal/model"
)

// maxIterations bounds centroid refinement; together with the
// exact-equality convergence check it guarantees termination.
const maxIterations = 20

// Partitioner clusters stops around k centroids. The random source is
// injectable so tests can pin the empty-cluster reseed behavior.
type Partitioner struct {
	rnd *rand.Rand
}

// New returns a Partitioner seeded from the clock.
func New() *Partitioner {
	return NewWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand returns a Partitioner using the given random source.
func NewWithRand(rnd *rand.Rand) *Partitioner {
	return &Partitioner{rnd: rnd}
}

// Partition splits stops into up to k non-empty groups. Groups are
// ordered by centroid distance from the origin so the nearest cluster
// is always the first segment. Fewer than k groups may be returned;
// callers must not assume exactly k.
//
// The result depends on input order (farthest-point seeding starts at
// stops[0]) and, when a cluster empties mid-iteration, on the injected
// random source.
func (p *Partitioner) Partition(origin model.GeoPoint, stops []model.Stop, k int) [][]model.Stop {
	if len(stops) == 0 {
		return nil
	}
	if k < 1 {
		k = 1
	}
	// Tiny inputs: one stop per group, no clustering.
	if len(stops) <= k {
		groups := make([][]model.Stop, len(stops))
		for i, s := range stops {
			groups[i] = []model.Stop{s}
		}
		return sortByOriginDistance(origin, groups)
	}

	centroids := seedCentroids(stops, k)
	assign := make([]int, len(stops))
	iterations := 0

	for iter := 0; iter < maxIterations; iter++ {
		iterations = iter + 1

		// Assignment: nearest centroid by squared planar distance.
		counts := make([]int, k)
		for i, s := range stops {
			best, bestD := 0, math.MaxFloat64
			for c, ct := range centroids {
				if d := sqDist(s.Lat, s.Lng, ct.lat, ct.lng); d < bestD {
					best, bestD = c, d
				}
			}
			assign[i] = best
			counts[best]++
		}

		// Update: mean of assigned stops; empty clusters are reseeded
		// from the worst-fitting stop (falling back to a random one) so
		// they cannot stay empty forever.
		moved := false
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				seed := p.reseedIndex(stops, centroids, assign)
				next := centroid{lat: stops[seed].Lat, lng: stops[seed].Lng}
				if next != centroids[c] {
					centroids[c] = next
					moved = true
				}
				continue
			}
			var sumLat, sumLng float64
			for i, s := range stops {
				if assign[i] == c {
					sumLat += s.Lat
					sumLng += s.Lng
				}
			}
			next := centroid{lat: sumLat / float64(counts[c]), lng: sumLng / float64(counts[c])}
			if next != centroids[c] {
				centroids[c] = next
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	metrics.PartitionIterations.Observe(float64(iterations))

	groups := make([][]model.Stop, k)
	for i, s := range stops {
		groups[assign[i]] = append(groups[assign[i]], s)
	}
	nonEmpty := groups[:0]
	for _, g := range groups {
		if len(g) > 0 {
			nonEmpty = append(nonEmpty, g)
		}
	}
	return sortByOriginDistance(origin, nonEmpty)
}

type centroid struct {
	lat, lng float64
}

// seedCentroids picks k well-separated seeds: the first stop, then
// repeatedly the stop maximizing its minimum distance to the seeds
// chosen so far. Deterministic for a fixed input order.
func seedCentroids(stops []model.Stop, k int) []centroid {
	seeds := make([]centroid, 0, k)
	seeds = append(seeds, centroid{lat: stops[0].Lat, lng: stops[0].Lng})
	for len(seeds) < k {
		bestIdx, bestMin := 0, -1.0
		for i, s := range stops {
			minD := math.MaxFloat64
			for _, c := range seeds {
				if d := sqDist(s.Lat, s.Lng, c.lat, c.lng); d < minD {
					minD = d
				}
			}
			if minD > bestMin {
				bestMin = minD
				bestIdx = i
			}
		}
		seeds = append(seeds, centroid{lat: stops[bestIdx].Lat, lng: stops[bestIdx].Lng})
	}
	return seeds
}

// reseedIndex picks a replacement seed for an empty cluster: the stop
// farthest from its current centroid. Ties and degenerate inputs
// (all stops on one point) fall back to a uniform random pick, which
// keeps the all-identical-coordinates case terminating.
func (p *Partitioner) reseedIndex(stops []model.Stop, centroids []centroid, assign []int) int {
	worst, worstD := -1, 0.0
	for i, s := range stops {
		c := centroids[assign[i]]
		if d := sqDist(s.Lat, s.Lng, c.lat, c.lng); d > worstD {
			worst, worstD = i, d
		}
	}
	if worst >= 0 {
		return worst
	}
	return p.rnd.Intn(len(stops))
}

func sqDist(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := lat1 - lat2
	dLng := lng1 - lng2
	return dLat*dLat + dLng*dLng
}

func sortByOriginDistance(origin model.GeoPoint, groups [][]model.Stop) [][]model.Stop {
	type keyed struct {
		d float64
		g []model.Stop
	}
	ks := make([]keyed, len(groups))
	for i, g := range groups {
		var sumLat, sumLng float64
		for _, s := range g {
			sumLat += s.Lat
			sumLng += s.Lng
		}
		n := float64(len(g))
		ks[i] = keyed{d: sqDist(sumLat/n, sumLng/n, origin.Lat, origin.Lng), g: g}
	}
	// Insertion sort keeps equal-distance groups in assignment order.
	for i := 1; i < len(ks); i++ {
		for j := i; j > 0 && ks[j].d < ks[j-1].d; j-- {
			ks[j], ks[j-1] = ks[j-1], ks[j]
		}
	}
	out := make([][]model.Stop, len(ks))
	for i := range ks {
		out[i] = ks[i].g
	}
	return out
}
