package coverage

import (
	"context"
	"testing"

	"github.com/skywave-radar/coverage/internal/geom"
	"github.com/skywave-radar/coverage/internal/radarphys"
	"github.com/skywave-radar/coverage/internal/viewshed"
)

type flatTerrain struct{ alt float64 }

func (f flatTerrain) Altitude(loc geom.LatLon) float64 { return f.alt }

func strongRadar(loc geom.LatLon, heightAMSL float64) Radar {
	return Radar{
		Name:        "R1",
		Location:    loc,
		HeightAMSLM: heightAMSL,
		Phys: radarphys.Params{
			TxPowerW: 1_000_000,
			GainDBi:  35,
			FreqMHz:  3000,
			LossDB:   6,
			SNRMinDB: 12,
		},
	}
}

func buildFlatViewshed(t *testing.T, loc geom.LatLon, heightAMSL float64) *viewshed.Viewshed {
	t.Helper()
	v, err := viewshed.BuildWithTerrain(context.Background(), flatTerrain{alt: 0}, viewshed.BuildParams{
		Radar: viewshed.RadarGeometry{Location: loc, HeightAMSLM: heightAMSL},
		MaxRange: 50_000,
		CellSize: 500,
	})
	if err != nil {
		t.Fatalf("build viewshed: %v", err)
	}
	return v
}

func TestRangeGateClassifiesOutOfRange(t *testing.T) {
	loc := geom.LatLon{Lat: 45, Lon: 10}
	radar := strongRadar(loc, 50)
	radar.Phys.TxPowerW = 1 // weak radar, short R_max
	vs := buildFlatViewshed(t, loc, 50)

	tile := Evaluate(flatTerrain{alt: 0}, vs, radar, Target{AGLM: 10, RCSM2: 1}, 45, 10, 200)

	rMax := radar.Phys.MaxRange(1)
	foundOutOfRange := false
	for _, c := range tile.Classes {
		if c == ClassOutOfRange {
			foundOutOfRange = true
			break
		}
	}
	if rMax < 100_000 && !foundOutOfRange {
		t.Error("expected at least one out-of-range pixel for a short-range radar")
	}
}

func TestFlatEarthLevelTargetVisible(t *testing.T) {
	loc := geom.LatLon{Lat: 0, Lon: 0, Alt: 10}
	radar := strongRadar(loc, 10)
	vs := buildFlatViewshed(t, loc, 10)

	// Evaluate the tile whose SW corner is the radar's location: the pixel
	// at x=0 on the southernmost row samples the radar's own position, and
	// its neighbours are at short range over level terrain.
	tile := Evaluate(flatTerrain{alt: 0}, vs, radar, Target{AGLM: 10, RCSM2: 10}, 0, 0, 400)

	visibleFound := false
	for _, c := range tile.Classes {
		if c == ClassVisible {
			visibleFound = true
			break
		}
	}
	if !visibleFound {
		t.Error("expected at least one visible pixel on flat terrain near a strong radar")
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	loc := geom.LatLon{Lat: 45, Lon: 10}
	radar := strongRadar(loc, 50)
	vs := buildFlatViewshed(t, loc, 50)
	target := Target{AGLM: 100, RCSM2: 5}

	a := Evaluate(flatTerrain{alt: 0}, vs, radar, target, 45, 10, 100)
	b := Evaluate(flatTerrain{alt: 0}, vs, radar, target, 45, 10, 100)

	if len(a.Classes) != len(b.Classes) {
		t.Fatalf("size mismatch")
	}
	for i := range a.Classes {
		if a.Classes[i] != b.Classes[i] || a.Margin[i] != b.Margin[i] {
			t.Fatalf("non-idempotent output at pixel %d", i)
		}
	}
}

func TestStepAgreementAtColocatedSamples(t *testing.T) {
	loc := geom.LatLon{Lat: 45, Lon: 10}
	radar := strongRadar(loc, 50)
	vs := buildFlatViewshed(t, loc, 50)
	target := Target{AGLM: 100, RCSM2: 5}

	step1 := Evaluate(flatTerrain{alt: 0}, vs, radar, target, 45, 10, 1)
	step10 := Evaluate(flatTerrain{alt: 0}, vs, radar, target, 45, 10, 10)

	// step10's pixel (0,0) samples the same SRTM index as step1's (0,0).
	if step1.Classes[0] != step10.Classes[0] {
		t.Errorf("co-located sample mismatch: step1=%v step10=%v", step1.Classes[0], step10.Classes[0])
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c, err := NewCache(4)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	radar := strongRadar(geom.LatLon{Lat: 45, Lon: 10}, 50)
	target := Target{AGLM: 10, RCSM2: 1}
	key := NewKey(45, 10, radar, target)

	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	tile := &Tile{LatIdx: 45, LonIdx: 10}
	c.Insert(key, tile)

	got, ok := c.Get(key)
	if !ok || got != tile {
		t.Fatal("expected cache hit returning the inserted tile")
	}
}

func TestCacheKeyChangesWithTargetAGL(t *testing.T) {
	radar := strongRadar(geom.LatLon{Lat: 45, Lon: 10}, 50)
	k1 := NewKey(45, 10, radar, Target{AGLM: 100, RCSM2: 1})
	k2 := NewKey(45, 10, radar, Target{AGLM: 101, RCSM2: 1})
	if k1 == k2 {
		t.Error("expected distinct keys for distinct target AGL")
	}
}

func TestInSectorDegWrap(t *testing.T) {
	if !inSectorDeg(350, 340, 10) {
		t.Error("expected 350 to be inside a wrapping [340,10) sector")
	}
	if inSectorDeg(20, 340, 10) {
		t.Error("expected 20 to be outside a wrapping [340,10) sector")
	}
}

func TestEvaluateOutOfBoundsViewshed(t *testing.T) {
	loc := geom.LatLon{Lat: 45, Lon: 10}
	radar := strongRadar(loc, 50)
	vs := buildFlatViewshed(t, loc, 50)

	// A tile far outside the small viewshed's footprint (and beyond
	// R_max, so the range gate fires before the horizon lookup) should be
	// classified out-of-range.
	tile := Evaluate(flatTerrain{alt: 0}, vs, radar, Target{AGLM: 10, RCSM2: 1}, 60, 60, 400)
	for _, c := range tile.Classes {
		if c != ClassOutOfRange {
			t.Fatalf("expected all-out-of-range tile far from viewshed, got class %v", c)
		}
	}
}
