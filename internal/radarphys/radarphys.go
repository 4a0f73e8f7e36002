// Package radarphys implements the effective-Earth-radius refraction model
// and the monostatic radar range equation used by the viewshed builder and
// coverage evaluator (spec.md §4.2).
package radarphys

import "math"

// Physical constants.
const (
	// EarthRadiusM is the unrefracted Earth radius in meters.
	EarthRadiusM = 6378137.0
	// SpeedOfLightMPS is c in meters/second.
	SpeedOfLightMPS = 299792458.0
	// BoltzmannJPerK is Boltzmann's constant in J/K.
	BoltzmannJPerK = 1.380649e-23
	// ReferenceTempK is the standard reference noise temperature T0.
	ReferenceTempK = 290.0
	// DefaultKFactor is the standard refraction k-factor (4/3).
	DefaultKFactor = 4.0 / 3.0
	// DefaultNoiseBandwidthHz is the default receiver bandwidth B.
	DefaultNoiseBandwidthHz = 1e6
	// DefaultNoiseFigureDB is the default receiver noise figure NF.
	DefaultNoiseFigureDB = 3.0
)

// EffectiveEarthRadius returns k * EarthRadiusM for the given refraction
// k-factor (k=4/3 is standard; k=+Inf models a flat, non-curved Earth).
func EffectiveEarthRadius(k float64) float64 {
	return EarthRadiusM * k
}

// CurvatureDrop returns the apparent drop, in meters, of a ground point at
// distance d (meters) due to Earth curvature under effective radius R_E*k.
// Returns 0 when k is +Inf (flat-Earth limit, spec.md §8).
func CurvatureDrop(d, k float64) float64 {
	if math.IsInf(k, 1) {
		return 0
	}
	return (d * d) / (2 * k * EarthRadiusM)
}

// dBToLinearPower converts a dB power ratio to linear.
func dBToLinearPower(db float64) float64 {
	return math.Pow(10, db/10)
}

// Params bundles the radar-equation inputs that are independent of range
// and target RCS: transmit power, antenna gain, carrier frequency, system
// loss, the detection SNR threshold in dB, and the receiver noise bandwidth
// and noise figure.
type Params struct {
	TxPowerW   float64 // transmit power, watts
	GainDBi    float64 // antenna gain, dBi
	FreqMHz    float64 // carrier frequency, MHz
	LossDB     float64 // system loss, dB
	SNRMinDB   float64 // detection SNR threshold, dB
	NoiseBWHz  float64 // receiver noise bandwidth; 0 => DefaultNoiseBandwidthHz
	NoiseFigDB float64 // receiver noise figure; 0 => DefaultNoiseFigureDB
}

// Wavelength returns lambda = c / f in meters.
func (p Params) Wavelength() float64 {
	return SpeedOfLightMPS / (p.FreqMHz * 1e6)
}

func (p Params) noiseBandwidth() float64 {
	if p.NoiseBWHz > 0 {
		return p.NoiseBWHz
	}
	return DefaultNoiseBandwidthHz
}

func (p Params) noiseFigureDB() float64 {
	if p.NoiseFigDB != 0 {
		return p.NoiseFigDB
	}
	return DefaultNoiseFigureDB
}

// NoisePower returns N = k_B * T0 * B * NF_lin in watts.
func (p Params) NoisePower() float64 {
	nfLin := dBToLinearPower(p.noiseFigureDB())
	return BoltzmannJPerK * ReferenceTempK * p.noiseBandwidth() * nfLin
}

// ReceivedPower returns P_r(R, sigma), the monostatic radar equation. An R
// of 0 returns +Inf (overhead / zero-range limit).
func (p Params) ReceivedPower(rangeM, rcsM2 float64) float64 {
	if rangeM == 0 {
		return math.Inf(1)
	}
	gLin := dBToLinearPower(p.GainDBi)
	lLin := dBToLinearPower(p.LossDB)
	lambda := p.Wavelength()

	num := p.TxPowerW * gLin * gLin * lambda * lambda * rcsM2
	den := math.Pow(4*math.Pi, 3) * math.Pow(rangeM, 4) * lLin
	return num / den
}

// SNRDB returns the signal-to-noise ratio in dB at the given range and RCS.
func (p Params) SNRDB(rangeM, rcsM2 float64) float64 {
	pr := p.ReceivedPower(rangeM, rcsM2)
	n := p.NoisePower()
	return 10 * math.Log10(pr/n)
}

// MaxRange returns R_max(sigma), the maximum range at which a target of the
// given RCS is detectable at the configured SNR threshold.
func (p Params) MaxRange(rcsM2 float64) float64 {
	gLin := dBToLinearPower(p.GainDBi)
	lLin := dBToLinearPower(p.LossDB)
	lambda := p.Wavelength()
	snrMinLin := dBToLinearPower(p.SNRMinDB)
	n := p.NoisePower()

	num := p.TxPowerW * gLin * gLin * lambda * lambda * rcsM2
	den := math.Pow(4*math.Pi, 3) * lLin * n * snrMinLin
	return math.Pow(num/den, 0.25)
}

// ElevationAngle returns the elevation angle (radians) from an observer at
// height hObsM (meters AMSL) to a ground point at height hGroundM, d meters
// away, corrected for Earth curvature at refraction factor k. For d below
// 0.1 m the target is treated as directly overhead (angle = +pi/2), per
// spec.md §4.4 / §8.
func ElevationAngle(hObsM, hGroundM, d, k float64) float64 {
	if d < 0.1 {
		return math.Pi / 2
	}
	drop := CurvatureDrop(d, k)
	return math.Atan((hGroundM - hObsM - drop) / d)
}
