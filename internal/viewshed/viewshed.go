// Package viewshed builds, per radar, a dense grid of horizon angles via
// perimeter-seeded Bresenham ray casting with a running-max horizon
// discipline (spec.md §4.3). It is the system's key performance idea: a
// single pass per ray replaces an explicit per-point obstruction search.
package viewshed

import (
	"context"
	"math"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/skywave-radar/coverage/internal/geom"
	"github.com/skywave-radar/coverage/internal/radarphys"
)

// DefaultCellSizeM is the default viewshed grid cell size in meters.
const DefaultCellSizeM = 100.0

// DefaultMaxRangeM is the default viewshed radius (roughly 470 km).
const DefaultMaxRangeM = 470_000.0

// TerrainSource supplies ground altitude for the ray-casting walk. Only
// terrain.Store need implement it; defined here to avoid an import cycle.
type TerrainSource interface {
	Altitude(loc geom.LatLon) float64
}

// Viewshed is an immutable, shared-ownership dense horizon-angle grid for
// one radar configuration. Grid origin (center) corresponds to the radar;
// +x is east, +y is north, row convention matches spec.md §3.
type Viewshed struct {
	Origin   geom.LatLon
	RadiusM  float64
	CellM    float64
	Width    int // = Height
	Horizon  []float64
	Cancelled bool
}

func (v *Viewshed) center() int { return v.Width / 2 }

// index returns the flat index for grid cell (x,y), or -1 if out of bounds.
func (v *Viewshed) index(x, y int) int {
	if x < 0 || y < 0 || x >= v.Width || y >= v.Width {
		return -1
	}
	return y*v.Width + x
}

// HorizonAngle looks up the stored horizon angle (radians) toward loc, or
// returns (0, false) if loc falls outside the built grid — an OutOfBounds
// condition per spec.md §7, which the coverage evaluator treats as
// out-of-range rather than an error.
func (v *Viewshed) HorizonAngle(loc geom.LatLon) (float64, bool) {
	eastM, northM := geom.LocalDisplacement(v.Origin, loc)
	c := v.center()
	x := c + int(math.Round(eastM/v.CellM))
	y := c + int(math.Round(northM/v.CellM))
	idx := v.index(x, y)
	if idx < 0 {
		return 0, false
	}
	return v.Horizon[idx], true
}

// BuildParams configures a viewshed build.
type BuildParams struct {
	Radar    RadarGeometry
	MaxRange float64 // meters; 0 => DefaultMaxRangeM
	CellSize float64 // meters; 0 => DefaultCellSizeM
	KFactor  float64 // refraction k-factor; 0 => radarphys.DefaultKFactor

	// Progress, if non-nil, is updated every 64 perimeter rays with the
	// index of the ray just cast, and set to the total perimeter-ray count
	// when the build completes.
	Progress *atomic.Int64
}

// RadarGeometry is the subset of Radar fields the viewshed builder needs:
// location and effective height above MSL. Kept narrow to avoid an import
// cycle with the radar configuration package.
type RadarGeometry struct {
	Location    geom.LatLon
	HeightAMSLM float64 // location.altitude + antenna_height_agl
}

// BuildWithTerrain constructs a viewshed for the given radar geometry by
// casting a Bresenham ray from the grid center to every perimeter cell,
// running a max-elevation-angle accumulator along each ray (spec.md §4.3).
// ctx cancellation is checked between rays; a cancelled build returns a
// non-nil *Viewshed with Cancelled=true and partial (discarded by callers)
// contents.
func BuildWithTerrain(ctx context.Context, terrain TerrainSource, p BuildParams) (*Viewshed, error) {
	maxRange := p.MaxRange
	if maxRange <= 0 {
		maxRange = DefaultMaxRangeM
	}
	cell := p.CellSize
	if cell <= 0 {
		cell = DefaultCellSizeM
	}
	k := p.KFactor
	if k == 0 {
		k = radarphys.DefaultKFactor
	}

	width := int(math.Ceil(2 * maxRange / cell))
	if width%2 == 1 {
		width++ // keep an exact center cell
	}

	v := &Viewshed{
		Origin:  p.Radar.Location,
		RadiusM: maxRange,
		CellM:   cell,
		Width:   width,
		Horizon: make([]float64, width*width),
	}
	for i := range v.Horizon {
		v.Horizon[i] = -math.Pi / 2
	}

	c := v.center()
	hRadar := p.Radar.HeightAMSLM

	castRay := func(x1, y1 int) {
		maxAngle := -math.Pi / 2
		bresenham(c, c, x1, y1, func(x, y int) {
			dx := float64(x-c) * cell
			dy := float64(y-c) * cell
			d := math.Hypot(dx, dy)

			idx := v.index(x, y)
			if idx < 0 {
				return
			}
			if d == 0 {
				v.Horizon[idx] = -math.Pi / 2
				maxAngle = -math.Pi / 2
				return
			}
			if d > maxRange {
				return
			}

			loc := geom.LocalOffset(v.Origin, dx, dy)
			hGround := terrain.Altitude(loc)
			angle := radarphys.ElevationAngle(hRadar, hGround, d, k)
			if angle > maxAngle {
				maxAngle = angle
			}
			v.Horizon[idx] = maxAngle
		})
	}

	perimeter := perimeterCells(width)
	for i, pc := range perimeter {
		if ctx.Err() != nil {
			v.Cancelled = true
			return v, nil
		}
		castRay(pc[0], pc[1])
		if p.Progress != nil && i%64 == 0 {
			p.Progress.Store(int64(i))
		}
	}
	if p.Progress != nil {
		p.Progress.Store(int64(len(perimeter)))
	}

	return v, nil
}

// perimeterCells enumerates every cell on the boundary of a width x width
// grid, seeding one ray per perimeter cell (spec.md §4.3).
func perimeterCells(width int) [][2]int {
	cells := make([][2]int, 0, 4*width)
	last := width - 1
	for x := 0; x <= last; x++ {
		cells = append(cells, [2]int{x, 0})
		cells = append(cells, [2]int{x, last})
	}
	for y := 1; y < last; y++ {
		cells = append(cells, [2]int{0, y})
		cells = append(cells, [2]int{last, y})
	}
	return cells
}

// bresenham walks an integer line from (x0,y0) to (x1,y1), calling visit
// for every cell traversed, inclusive of both endpoints.
func bresenham(x0, y0, x1, y1 int, visit func(x, y int)) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 >= x1 {
		sx = -1
	}
	sy := 1
	if y0 >= y1 {
		sy = -1
	}
	err := dx + dy

	x, y := x0, y0
	for {
		visit(x, y)
		if x == x1 && y == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Builder coalesces concurrent build requests for the same radar identity
// onto a single ray-casting pass, mirroring cmd/import-elevation's
// singleflight-guarded tile loading in the teacher repo.
type Builder struct {
	terrain TerrainSource
	sf      singleflight.Group
}

// NewBuilder creates a Builder drawing ground altitudes from terrain.
func NewBuilder(terrain TerrainSource) *Builder {
	return &Builder{terrain: terrain}
}

// Build runs (or joins an in-flight) viewshed build keyed by radarKey —
// typically the radar's config hash, so a parameter change naturally
// starts a fresh build instead of joining a stale one. Completed viewsheds
// are not retained: a call made after an earlier build has finished runs a
// new ray-casting pass.
func (b *Builder) Build(ctx context.Context, radarKey string, p BuildParams) (*Viewshed, error) {
	v, err, _ := b.sf.Do(radarKey, func() (interface{}, error) {
		return BuildWithTerrain(ctx, b.terrain, p)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Viewshed), nil
}
