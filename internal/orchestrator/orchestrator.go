// Package orchestrator schedules background viewshed and coverage
// computations, services the caches, and invalidates outputs when radar
// parameters or target parameters change (spec.md §4.6).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dhconnelly/rtreego"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/skywave-radar/coverage/internal/coverage"
	"github.com/skywave-radar/coverage/internal/geom"
	"github.com/skywave-radar/coverage/internal/viewshed"
)

// TerrainSource supplies ground altitude to both the viewshed builder and
// the coverage evaluator.
type TerrainSource interface {
	Altitude(loc geom.LatLon) float64
}

// TileWindow identifies a single 1x1 degree output tile.
type TileWindow struct {
	LatIdx int
	LonIdx int
}

// Result pairs a computed coverage tile with its cache key, the shape the
// consumer interface streams (spec.md §6).
type Result struct {
	Key  coverage.Key
	Tile *coverage.Tile
}

// Metrics holds the operator-facing counters spec.md §6 names.
type Metrics struct {
	TilesComputed atomic.Int64
	CacheHits     atomic.Int64
	LastComputeMS atomic.Int64
}

// radarEntry is the rtree-indexed operational disk of one radar; it
// implements rtreego.Spatial the same way beetlebugorg-s57's ChartEntry
// indexes chart bounding boxes.
type radarEntry struct {
	radar   coverage.Radar
	radiusM float64
}

func (e *radarEntry) bounds() rtreego.Rect {
	// Degrees-per-meter is approximate at this scale; the rtree is a
	// coarse pre-filter, not the geometry source of truth (that's
	// geom.Geodesic inside the evaluator).
	degPerM := 1.0 / geom.MetersPerDegreeLat
	halfDeg := e.radiusM * degPerM
	point := rtreego.Point{e.radar.Location.Lon - halfDeg, e.radar.Location.Lat - halfDeg}
	lengths := []float64{2 * halfDeg, 2 * halfDeg}
	rect, _ := rtreego.NewRect(point, lengths)
	return rect
}

// spatialRadar adapts radarEntry to rtreego.Spatial without requiring the
// tree to store pointers' bounds eagerly (rtreego computes Bounds() once
// on Insert, so entries must not be spatially mutated after insertion —
// a configuration change instead replaces the entry wholesale).
type spatialRadar struct {
	*radarEntry
}

func (s spatialRadar) Bounds() rtreego.Rect { return s.radarEntry.bounds() }

// Orchestrator is the §4.6 task orchestrator. The zero value is not usable;
// construct with New.
type Orchestrator struct {
	terrain TerrainSource
	builder *viewshed.Builder
	workers int

	mu      sync.Mutex
	radars  map[string]*radarEntry
	rtree   *rtreego.Rtree
	metrics Metrics
}

// New creates an Orchestrator drawing terrain from the given source. workers
// bounds the number of radars served concurrently by a single
// RequestCoverage call (spec.md §5's worker-pool resource model).
func New(terrain TerrainSource, workers int) *Orchestrator {
	if workers <= 0 {
		workers = 4
	}
	return &Orchestrator{
		terrain: terrain,
		builder: viewshed.NewBuilder(terrain),
		workers: workers,
		radars:  make(map[string]*radarEntry),
		rtree:   rtreego.NewTree(2, 4, 16),
	}
}

// SetRadars replaces the live radar set. Radars absent from the new set are
// dropped (their cached outputs remain until overwritten by LRU pressure);
// radars whose parameters changed get a fresh config hash and therefore a
// fresh viewshed + coverage key on next request (spec.md §4.6).
func (o *Orchestrator) SetRadars(radars []coverage.Radar, defaultRadiusM float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.radars = make(map[string]*radarEntry, len(radars))
	o.rtree = rtreego.NewTree(2, 4, 16)
	for _, r := range radars {
		entry := &radarEntry{radar: r, radiusM: defaultRadiusM}
		o.radars[r.Name] = entry
		o.rtree.Insert(spatialRadar{entry})
	}
}

// InvalidateRadar removes the named radar from the live set and the spatial
// index, so later requests no longer serve it. Tiles already stored in a
// coverage cache are not removed, and no viewshed is held to drop.
func (o *Orchestrator) InvalidateRadar(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.radars[name]; ok {
		o.rtree.Delete(spatialRadar{e})
		delete(o.radars, name)
	}
}

// ensureViewshed builds a viewshed for the named radar. Viewsheds are not
// kept between calls; the singleflight group inside viewshed.Builder only
// coalesces concurrent callers with the same radar and target parameters
// onto a single pass.
func (o *Orchestrator) ensureViewshed(ctx context.Context, name string, target coverage.Target) (*viewshed.Viewshed, error) {
	o.mu.Lock()
	entry, ok := o.radars[name]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("orchestrator: unknown radar %q", name)
	}

	key := coverage.RadarConfigHash(entry.radar, target)
	progress := &atomic.Int64{}

	vs, err := o.builder.Build(ctx, name+":"+key, viewshed.BuildParams{
		Radar: viewshed.RadarGeometry{
			Location:    entry.radar.Location,
			HeightAMSLM: entry.radar.HeightAMSLM,
		},
		MaxRange: entry.radiusM,
		KFactor:  entry.radar.KFactor,
		Progress: progress,
	})
	if err != nil {
		slog.Error("viewshed build failed", "radar", name, "error", err)
		return nil, fmt.Errorf("build viewshed for %q: %w", name, err)
	}
	if vs.Cancelled {
		return nil, fmt.Errorf("viewshed build for %q cancelled", name)
	}
	return vs, nil
}

// RequestCoverage implements spec.md §6's request_coverage: for every
// radar whose operational disk could reach the requested tiles, it builds
// a viewshed, then serves cached or freshly-computed coverage
// tiles for every (radar, tile) pair, streaming results on the returned
// channel. The channel is closed once every pair has been served or ctx is
// cancelled.
func (o *Orchestrator) RequestCoverage(ctx context.Context, cache *coverage.Cache, target coverage.Target, windows []TileWindow) <-chan Result {
	out := make(chan Result, len(windows))

	go func() {
		defer close(out)

		names := o.candidateRadars(windows)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.workers)
		for _, name := range names {
			name := name
			g.Go(func() error {
				return o.serveRadar(gctx, cache, name, target, windows, out)
			})
		}
		if err := g.Wait(); err != nil {
			slog.Error("coverage request failed", "error", err)
		}
	}()

	return out
}

// candidateRadars queries the spatial index for radars whose operational
// disk intersects any of the requested tiles, mirroring
// beetlebugorg-s57's ChartIndex.Query pre-filter over chart bounding
// boxes (SearchIntersect then a name-level dedupe instead of a
// scale/usage-band filter).
func (o *Orchestrator) candidateRadars(windows []TileWindow) []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	seen := make(map[string]struct{})
	for _, w := range windows {
		point := rtreego.Point{float64(w.LonIdx), float64(w.LatIdx)}
		rect, err := rtreego.NewRect(point, []float64{1, 1})
		if err != nil {
			continue
		}
		for _, hit := range o.rtree.SearchIntersect(rect) {
			if sr, ok := hit.(spatialRadar); ok {
				seen[sr.radar.Name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names
}

func (o *Orchestrator) serveRadar(ctx context.Context, cache *coverage.Cache, name string, target coverage.Target, windows []TileWindow, out chan<- Result) error {
	o.mu.Lock()
	entry, ok := o.radars[name]
	o.mu.Unlock()
	if !ok {
		return nil
	}

	vs, err := o.ensureViewshed(ctx, name, target)
	if err != nil {
		return err
	}

	for _, w := range windows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		key := coverage.NewKey(w.LatIdx, w.LonIdx, entry.radar, target)

		if tile, ok := cache.Get(key); ok {
			o.metrics.CacheHits.Add(1)
			select {
			case out <- Result{Key: key, Tile: tile}:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		start := time.Now()
		tile := coverage.Evaluate(o.terrain, vs, entry.radar, target, w.LatIdx, w.LonIdx, 16)
		o.metrics.LastComputeMS.Store(time.Since(start).Milliseconds())
		o.metrics.TilesComputed.Add(1)
		cache.Insert(key, tile)

		select {
		case out <- Result{Key: key, Tile: tile}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// MetricsSnapshot returns a snapshot of the operator-facing counters.
func (o *Orchestrator) MetricsSnapshot() (tilesComputed, cacheHits, lastComputeMS int64) {
	return o.metrics.TilesComputed.Load(), o.metrics.CacheHits.Load(), o.metrics.LastComputeMS.Load()
}

// JobID returns a fresh identifier for tracking a background job, for
// callers that want to correlate log lines across an async request.
func JobID() string {
	return uuid.NewString()
}
