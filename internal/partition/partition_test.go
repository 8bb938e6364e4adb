package partition

import (
	"fmt"
	"math/rand"
	"testing"

	"lastmile/internal/model"
)

func mkStop(id string, lat, lng float64) model.Stop {
	return model.Stop{GeoPoint: model.GeoPoint{ID: id, Lat: lat, Lng: lng}}
}

func fixed() *Partitioner {
	return NewWithRand(rand.New(rand.NewSource(42)))
}

var origin = model.GeoPoint{ID: "depot", Lat: 40.0, Lng: -74.0}

// Two well-separated neighborhoods, seven stops total.
func sevenStops() []model.Stop {
	return []model.Stop{
		mkStop("a1", 40.01, -74.01),
		mkStop("a2", 40.02, -74.02),
		mkStop("b1", 40.50, -74.50),
		mkStop("a3", 40.01, -74.03),
		mkStop("b2", 40.51, -74.52),
		mkStop("b3", 40.52, -74.51),
		mkStop("a4", 40.03, -74.01),
	}
}

func TestPartitionTwoGroupsCoverAllStops(t *testing.T) {
	groups := fixed().Partition(origin, sevenStops(), 2)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	seen := map[string]int{}
	total := 0
	for _, g := range groups {
		if len(g) == 0 {
			t.Fatalf("empty group surfaced")
		}
		for _, s := range g {
			seen[s.ID]++
			total++
		}
	}
	if total != 7 {
		t.Fatalf("expected 7 stops across groups, got %d", total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("stop %s appears %d times", id, n)
		}
	}
}

func TestPartitionSeparatesNeighborhoods(t *testing.T) {
	groups := fixed().Partition(origin, sevenStops(), 2)
	for _, g := range groups {
		prefix := g[0].ID[:1]
		for _, s := range g {
			if s.ID[:1] != prefix {
				t.Fatalf("mixed neighborhoods in one group: %+v", g)
			}
		}
	}
}

func TestPartitionSingleStopManyGroups(t *testing.T) {
	groups := fixed().Partition(origin, []model.Stop{mkStop("only", 40.1, -74.1)}, 2)
	if len(groups) != 1 {
		t.Fatalf("expected exactly 1 group, got %d", len(groups))
	}
	if len(groups[0]) != 1 || groups[0][0].ID != "only" {
		t.Fatalf("unexpected group contents: %+v", groups)
	}
}

func TestPartitionTinyInputSingletons(t *testing.T) {
	stops := []model.Stop{mkStop("s1", 40.1, -74.1), mkStop("s2", 40.2, -74.2)}
	groups := fixed().Partition(origin, stops, 5)
	if len(groups) != 2 {
		t.Fatalf("expected 2 singleton groups, got %d", len(groups))
	}
	for _, g := range groups {
		if len(g) != 1 {
			t.Fatalf("expected singleton group, got %d stops", len(g))
		}
	}
}

func TestPartitionIdenticalCoordinatesTerminates(t *testing.T) {
	stops := make([]model.Stop, 12)
	for i := range stops {
		stops[i] = mkStop(fmt.Sprintf("s%d", i), 40.0, -74.0)
	}
	groups := fixed().Partition(origin, stops, 3)
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	if total != 12 {
		t.Fatalf("stops lost or duplicated: %d", total)
	}
}

func TestPartitionCompletenessAcrossKs(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	stops := make([]model.Stop, 40)
	for i := range stops {
		stops[i] = mkStop(fmt.Sprintf("s%d", i), 40+rnd.Float64(), -74+rnd.Float64())
	}
	for k := 1; k <= 8; k++ {
		groups := NewWithRand(rand.New(rand.NewSource(int64(k)))).Partition(origin, stops, k)
		if len(groups) > k {
			t.Fatalf("k=%d: more than k groups: %d", k, len(groups))
		}
		seen := map[string]bool{}
		for _, g := range groups {
			for _, s := range g {
				if seen[s.ID] {
					t.Fatalf("k=%d: duplicate stop %s", k, s.ID)
				}
				seen[s.ID] = true
			}
		}
		if len(seen) != len(stops) {
			t.Fatalf("k=%d: %d of %d stops partitioned", k, len(seen), len(stops))
		}
	}
}

func TestPartitionDeterministicWithFixedSeed(t *testing.T) {
	a := fixed().Partition(origin, sevenStops(), 3)
	b := fixed().Partition(origin, sevenStops(), 3)
	if len(a) != len(b) {
		t.Fatalf("group counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			t.Fatalf("group %d sizes differ", i)
		}
		for j := range a[i] {
			if a[i][j].ID != b[i][j].ID {
				t.Fatalf("group %d differs at %d: %s vs %s", i, j, a[i][j].ID, b[i][j].ID)
			}
		}
	}
}

func TestPartitionNearestGroupFirst(t *testing.T) {
	groups := fixed().Partition(origin, sevenStops(), 2)
	if groups[0][0].ID[:1] != "a" {
		t.Fatalf("expected the cluster nearest the origin first, got %+v", groups[0])
	}
}
