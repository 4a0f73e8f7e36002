// Package coverage implements the per-tile coverage evaluator and the
// bounded LRU coverage cache keyed by CoverageKey (spec.md §4.4, §4.5).
package coverage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/skywave-radar/coverage/internal/geom"
	"github.com/skywave-radar/coverage/internal/radarphys"
	"github.com/skywave-radar/coverage/internal/viewshed"
)

// SRTMSize is the fixed 1-arc-second grid dimension (spec.md §4.4's
// SRTM_SIZE), used to back out pixel lat/lon from a downsampled tile.
const SRTMSize = 3601

// Class is the three-valued coverage classification of a pixel.
type Class uint8

const (
	ClassOutOfRange Class = 0
	ClassVisible    Class = 1
	ClassShadowed   Class = 2
)

// Radar bundles the fields the evaluator needs from a radar configuration:
// geometry for the range/angle math, an optional azimuth/elevation sector,
// and the radar-equation parameters.
type Radar struct {
	Name        string
	Location    geom.LatLon
	HeightAMSLM float64
	Phys        radarphys.Params
	KFactor     float64 // refraction k-factor; 0 => radarphys.DefaultKFactor
	AzimuthMin  float64 // degrees; the sector filter applies only when HasAzSector is set
	AzimuthMax  float64
	ElevMinDeg  float64
	ElevMaxDeg  float64
	HasAzSector bool
	HasElSector bool
}

// Target bundles the target profile evaluated against a radar.
type Target struct {
	AGLM  float64
	RCSM2 float64
}

// Tile is a §3 CoverageTile: a size x size raster of Class values and a
// parallel raster of angular margins in degrees.
type Tile struct {
	LatIdx  int
	LonIdx  int
	Step    int
	Size    int
	Classes []Class
	Margin  []float64 // degrees; >=0 visible, <0 shadowed, 0 for out-of-range
}

// TerrainSource supplies ground altitude for the evaluator.
type TerrainSource interface {
	Altitude(loc geom.LatLon) float64
}

// Key is a §3 CoverageKey.
type Key struct {
	LatIdx          int
	LonIdx          int
	TargetAGLRound  int16
	RadarConfigHash string
}

// RadarConfigHash computes a stable digest of the fields spec.md §3 names:
// name, location, altitude, frequency, power, gain, system loss, SNR
// threshold, target AGL, and target RCS — plus the noise bandwidth and
// figure, refraction k-factor, and sector bounds, so that any change to a
// radar parameter the evaluator reads yields a different hash.
func RadarConfigHash(r Radar, t Target) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%.6f|%.6f|%.3f|%.3f|%.3f|%.3f|%.3f|%.3f|%.3f|%.3f",
		r.Name, r.Location.Lat, r.Location.Lon, r.HeightAMSLM,
		r.Phys.FreqMHz, r.Phys.TxPowerW, r.Phys.GainDBi, r.Phys.LossDB,
		r.Phys.SNRMinDB, t.AGLM, t.RCSM2)
	fmt.Fprintf(h, "|%.3f|%.3f|%.6f|%t|%.3f|%.3f|%t|%.3f|%.3f",
		r.Phys.NoiseBWHz, r.Phys.NoiseFigDB, r.KFactor,
		r.HasAzSector, r.AzimuthMin, r.AzimuthMax,
		r.HasElSector, r.ElevMinDeg, r.ElevMaxDeg)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// NewKey builds a Key, rounding target AGL to the nearest meter per
// spec.md §3 ("target_agl_m rounded to i16").
func NewKey(latIdx, lonIdx int, r Radar, t Target) Key {
	return Key{
		LatIdx:          latIdx,
		LonIdx:          lonIdx,
		TargetAGLRound:  int16(math.Round(t.AGLM)),
		RadarConfigHash: RadarConfigHash(r, t),
	}
}

// Evaluate computes a CoverageTile for the 1x1 degree tile (latIdx,lonIdx)
// against a single radar, sampling the SRTM grid at the given downsampling
// step (spec.md §4.4).
func Evaluate(terrain TerrainSource, vs *viewshed.Viewshed, r Radar, t Target, latIdx, lonIdx, step int) *Tile {
	size := int(math.Ceil(float64(SRTMSize) / float64(step)))
	tile := &Tile{
		LatIdx:  latIdx,
		LonIdx:  lonIdx,
		Step:    step,
		Size:    size,
		Classes: make([]Class, size*size),
		Margin:  make([]float64, size*size),
	}

	rMax := r.Phys.MaxRange(t.RCSM2)
	kFactor := r.KFactor
	if kFactor == 0 {
		kFactor = radarphys.DefaultKFactor
	}

	for y := 0; y < size; y++ {
		oy := min(y*step, SRTMSize-1)
		pixelLat := float64(latIdx+1) - float64(oy)/float64(SRTMSize-1)

		for x := 0; x < size; x++ {
			ox := min(x*step, SRTMSize-1)
			pixelLon := float64(lonIdx) + float64(ox)/float64(SRTMSize-1)

			idx := y*size + x
			pixelLoc := geom.LatLon{Lat: pixelLat, Lon: pixelLon}

			d := geom.Geodesic(r.Location, pixelLoc)
			if d > rMax {
				tile.Classes[idx] = ClassOutOfRange
				continue
			}

			if r.HasAzSector {
				brg := geom.Bearing(r.Location, pixelLoc)
				if !inSectorDeg(brg, r.AzimuthMin, r.AzimuthMax) {
					tile.Classes[idx] = ClassOutOfRange
					continue
				}
			}

			horizon, ok := vs.HorizonAngle(pixelLoc)
			if !ok {
				tile.Classes[idx] = ClassOutOfRange
				continue
			}

			hGround := terrain.Altitude(pixelLoc)
			hTarget := hGround + t.AGLM
			alphaT := radarphys.ElevationAngle(r.HeightAMSLM, hTarget, d, kFactor)

			if r.HasElSector {
				elDeg := alphaT * 180 / math.Pi
				if elDeg < r.ElevMinDeg || elDeg >= r.ElevMaxDeg {
					tile.Classes[idx] = ClassOutOfRange
					continue
				}
			}

			marginDeg := (alphaT - horizon) * 180 / math.Pi
			tile.Margin[idx] = marginDeg
			if alphaT >= horizon {
				tile.Classes[idx] = ClassVisible
			} else {
				tile.Classes[idx] = ClassShadowed
			}
		}
	}

	return tile
}

// inSectorDeg reports whether bearing deg falls in the half-open interval
// [min,max), wrapping at 360 (spec.md §4.4's sector filtering).
func inSectorDeg(bearing, min, max float64) bool {
	bearing = math.Mod(bearing+360, 360)
	min = math.Mod(min+360, 360)
	max = math.Mod(max+360, 360)
	if min <= max {
		return bearing >= min && bearing < max
	}
	return bearing >= min || bearing < max
}

// Cache is the bounded LRU coverage cache of spec.md §4.5: Get returns a
// shared handle or a miss; Insert replaces any existing entry; Clear drops
// all entries. golang-lru's Cache already serializes access internally, so
// no extra mutex is needed here.
type Cache struct {
	lru *lru.Cache[Key, *Tile]
}

// NewCache creates a coverage cache with the given capacity (default 100
// per spec.md §4.5).
func NewCache(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = 100
	}
	c, err := lru.New[Key, *Tile](capacity)
	if err != nil {
		return nil, fmt.Errorf("coverage: new LRU: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Get returns the cached tile for key, if present.
func (c *Cache) Get(key Key) (*Tile, bool) {
	return c.lru.Get(key)
}

// Insert stores tile under key, replacing any existing entry.
func (c *Cache) Insert(key Key, tile *Tile) {
	c.lru.Add(key, tile)
}

// Clear drops all cached entries.
func (c *Cache) Clear() {
	c.lru.Purge()
}

// Len returns the number of entries currently cached.
func (c *Cache) Len() int {
	return c.lru.Len()
}
