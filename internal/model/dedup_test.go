package model

import "testing"

func stop(id, order string) Stop {
	return Stop{GeoPoint: GeoPoint{ID: id, Lat: 1, Lng: 1}, OrderNumber: order}
}

func TestKeySetMatchesByIDOrOrderNumber(t *testing.T) {
	ks := NewKeySet()
	ks.Add(stop("s1", "1001"))

	if !ks.Has(stop("s1", "")) {
		t.Fatalf("expected id match")
	}
	if !ks.Has(stop("s9", "1001")) {
		t.Fatalf("expected order-number match for re-geocoded stop")
	}
	if ks.Has(stop("s2", "1002")) {
		t.Fatalf("unexpected match for unrelated stop")
	}
	if ks.Has(Stop{}) {
		t.Fatalf("empty stop must never match")
	}
}

func TestKeyOfPrefersID(t *testing.T) {
	a := KeyOf(stop("s1", "1001"))
	b := KeyOf(stop("s1", "2002"))
	if a != b {
		t.Fatalf("id key must win over order number: %v vs %v", a, b)
	}
	c := KeyOf(stop("", "1001"))
	if c == a {
		t.Fatalf("order-number key must differ from id key")
	}
}

func TestDedupStopsKeepsFirstOccurrence(t *testing.T) {
	in := []Stop{
		stop("s1", "1001"),
		stop("s2", "1002"),
		stop("s1", ""),     // duplicate id
		stop("s3", "1002"), // same logical delivery, different id
		stop("s4", ""),
	}
	out := DedupStops(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 unique stops, got %d: %+v", len(out), out)
	}
	if out[0].ID != "s1" || out[1].ID != "s2" || out[2].ID != "s4" {
		t.Fatalf("order not preserved: %+v", out)
	}
}
