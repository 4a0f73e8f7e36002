package geom

import (
	"math"
	"testing"
)

func TestGeodesicSanity(t *testing.T) {
	d := Geodesic(LatLon{Lat: 0, Lon: 0}, LatLon{Lat: 1, Lon: 0})
	if math.Abs(d-111319) > 100 {
		t.Errorf("geodesic(0,0 -> 1,0) = %.1f, want ~111319 +-100", d)
	}

	brg := Bearing(LatLon{Lat: 0, Lon: 0}, LatLon{Lat: 1, Lon: 0})
	if math.Abs(brg-0) > 1e-6 {
		t.Errorf("bearing(0,0 -> 1,0) = %.4f, want ~0", brg)
	}
}

func TestGeodesicZero(t *testing.T) {
	p := LatLon{Lat: 12.3, Lon: 45.6}
	if d := Geodesic(p, p); d != 0 {
		t.Errorf("geodesic(p,p) = %v, want 0", d)
	}
}

func TestLocalOffsetRoundTrip(t *testing.T) {
	origin := LatLon{Lat: 40, Lon: -74}
	for _, tc := range []struct{ east, north float64 }{
		{0, 0},
		{1000, 2000},
		{-5000, 3000},
	} {
		p := LocalOffset(origin, tc.east, tc.north)
		e, n := LocalDisplacement(origin, p)
		if math.Abs(e-tc.east) > 1e-6 || math.Abs(n-tc.north) > 1e-6 {
			t.Errorf("round trip (%v,%v) -> (%v,%v)", tc.east, tc.north, e, n)
		}
	}
}

func TestMetersPerDegreeLonDecreasesTowardPoles(t *testing.T) {
	eq := MetersPerDegreeLon(0)
	mid := MetersPerDegreeLon(60)
	if mid >= eq {
		t.Errorf("expected meters/degree longitude to shrink away from equator: eq=%v mid=%v", eq, mid)
	}
}
