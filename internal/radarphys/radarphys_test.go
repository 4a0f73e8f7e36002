package radarphys

import (
	"math"
	"testing"
)

func testParams() Params {
	return Params{
		TxPowerW: 1_000_000,
		GainDBi:  35,
		FreqMHz:  3000,
		LossDB:   6,
		SNRMinDB: 12,
	}
}

func TestMaxRangePositive(t *testing.T) {
	p := testParams()
	r := p.MaxRange(1.0)
	if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		t.Fatalf("MaxRange = %v, want finite positive", r)
	}
}

func TestMaxRangeGrowsWithRCS(t *testing.T) {
	p := testParams()
	small := p.MaxRange(0.1)
	big := p.MaxRange(10)
	if big <= small {
		t.Errorf("expected larger RCS to extend max range: small=%v big=%v", small, big)
	}
}

func TestSNRAtMaxRangeMatchesThreshold(t *testing.T) {
	p := testParams()
	rcs := 5.0
	rMax := p.MaxRange(rcs)
	snr := p.SNRDB(rMax, rcs)
	if math.Abs(snr-p.SNRMinDB) > 1e-6 {
		t.Errorf("SNR at R_max = %v, want %v", snr, p.SNRMinDB)
	}
}

func TestReceivedPowerZeroRangeIsInfinite(t *testing.T) {
	p := testParams()
	pr := p.ReceivedPower(0, 1.0)
	if !math.IsInf(pr, 1) {
		t.Errorf("ReceivedPower(0, ...) = %v, want +Inf", pr)
	}
}

func TestCurvatureDropFlatEarthLimit(t *testing.T) {
	if d := CurvatureDrop(100000, math.Inf(1)); d != 0 {
		t.Errorf("CurvatureDrop with k=+Inf = %v, want 0", d)
	}
}

func TestCurvatureDropIncreasesWithDistance(t *testing.T) {
	near := CurvatureDrop(10000, DefaultKFactor)
	far := CurvatureDrop(100000, DefaultKFactor)
	if far <= near {
		t.Errorf("expected curvature drop to grow with distance: near=%v far=%v", near, far)
	}
}

func TestElevationAngleOverhead(t *testing.T) {
	a := ElevationAngle(0, 1000, 0.05, DefaultKFactor)
	if math.Abs(a-math.Pi/2) > 1e-9 {
		t.Errorf("ElevationAngle at d<0.1 = %v, want pi/2", a)
	}
}

func TestElevationAngleLevelFlatEarth(t *testing.T) {
	a := ElevationAngle(100, 100, 5000, math.Inf(1))
	if math.Abs(a) > 1e-9 {
		t.Errorf("ElevationAngle for a level target on flat Earth = %v, want ~0", a)
	}
}
