// Package terrain loads SRTM-style HGT elevation tiles from disk, caches
// them in a bounded LRU, and exposes a bilinear altitude(lat,lon) sampler
// (spec.md §4.1).
package terrain

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/skywave-radar/coverage/internal/geom"
)

// Grid sizes implied by HGT file length, per spec.md §3/§6.
const (
	size3Arc = 1201
	size1Arc = 3601

	bytes3Arc = size3Arc * size3Arc * 2
	bytes1Arc = size1Arc * size1Arc * 2
)

// ErrKind classifies a tile-load failure (spec.md §7's error taxonomy).
type ErrKind int

const (
	// KindMissingAsset: the HGT file does not exist. Handled via a zero
	// fallback tile; never returned from Store.GetTile.
	KindMissingAsset ErrKind = iota
	// KindSizeMismatch: the file exists but its length matches neither
	// 1-arc-second nor 3-arc-second grids.
	KindSizeMismatch
	// KindIOError: the file exists but could not be read.
	KindIOError
)

// LoadError reports a CorruptAsset/IoError condition from LoadTile.
type LoadError struct {
	Kind ErrKind
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("terrain: load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Tile is an immutable, shared-ownership terrain tile: its SW corner is
// (LatDeg, LonDeg), its NE corner is (LatDeg+1, LonDeg+1), and Elevations is
// a row-major grid of Size x Size signed 16-bit meters with row 0 the
// northernmost row.
type Tile struct {
	LatDeg     int
	LonDeg     int
	Size       int
	Elevations []int16
}

// at returns the raw elevation at grid row r, column c (no interpolation).
func (t *Tile) at(r, c int) int16 {
	return t.Elevations[r*t.Size+c]
}

// flatTile synthesizes an all-zero tile at MSL for a missing asset.
func flatTile(latDeg, lonDeg int) *Tile {
	const size = size1Arc
	return &Tile{
		LatDeg:     latDeg,
		LonDeg:     lonDeg,
		Size:       size,
		Elevations: make([]int16, size*size),
	}
}

// tileFileName returns the HGT filename for a tile's SW-corner integer
// degree, per spec.md §6: {N|S}dd{E|W}ddd.hgt.
func tileFileName(latDeg, lonDeg int) string {
	ns := "N"
	latAbs := latDeg
	if latDeg < 0 {
		ns = "S"
		latAbs = -latDeg
	}
	ew := "E"
	lonAbs := lonDeg
	if lonDeg < 0 {
		ew = "W"
		lonAbs = -lonDeg
	}
	return fmt.Sprintf("%s%02d%s%03d.hgt", ns, latAbs, ew, lonAbs)
}

// LoadTile opens the HGT file for the tile whose SW corner is
// (latDeg, lonDeg) under assetsRoot. A missing file yields a flat
// zero-elevation tile and a nil error (MissingAsset is fail-soft, per
// spec.md §7); any other failure yields a *LoadError.
func LoadTile(assetsRoot string, latDeg, lonDeg int) (*Tile, error) {
	path := filepath.Join(assetsRoot, tileFileName(latDeg, lonDeg))

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("terrain tile missing, using flat fallback", "path", path)
			return flatTile(latDeg, lonDeg), nil
		}
		return nil, &LoadError{Kind: KindIOError, Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &LoadError{Kind: KindIOError, Path: path, Err: err}
	}

	var size int
	switch info.Size() {
	case bytes1Arc:
		size = size1Arc
	case bytes3Arc:
		size = size3Arc
	default:
		return nil, &LoadError{
			Kind: KindSizeMismatch,
			Path: path,
			Err:  fmt.Errorf("unexpected size %d bytes", info.Size()),
		}
	}

	raw := make([]int16, size*size)
	if err := binary.Read(f, binary.BigEndian, raw); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return nil, &LoadError{Kind: KindSizeMismatch, Path: path, Err: err}
		}
		return nil, &LoadError{Kind: KindIOError, Path: path, Err: err}
	}

	return &Tile{LatDeg: latDeg, LonDeg: lonDeg, Size: size, Elevations: raw}, nil
}

func tileKey(latDeg, lonDeg int) [2]int { return [2]int{latDeg, lonDeg} }

// floorTileIndex returns the SW-corner integer degree for a coordinate,
// per spec.md §4.1's tie-break: floor deterministically selects the
// southern/western tile.
func floorTileIndex(v float64) int {
	return int(math.Floor(v))
}

// Store is a bounded-memory, concurrency-safe terrain tile cache. A single
// mutex serializes cache bookkeeping; the singleflight group coalesces
// concurrent loads of the same tile onto one disk read, mirroring
// cmd/import-elevation's GLO90Reader.GetElevation and
// internal/viewshed.Builder.Build.
type Store struct {
	assetsRoot string

	mu    sync.Mutex
	cache *lru.Cache[[2]int, *Tile]
	sf    singleflight.Group
}

// NewStore creates a terrain store rooted at assetsRoot with a bounded LRU
// of the given tile capacity.
func NewStore(assetsRoot string, capacity int) (*Store, error) {
	c, err := lru.New[[2]int, *Tile](capacity)
	if err != nil {
		return nil, fmt.Errorf("terrain: new LRU: %w", err)
	}
	return &Store{
		assetsRoot: assetsRoot,
		cache:      c,
	}, nil
}

// sfKey maps a tile index to the string key singleflight.Group requires.
func sfKey(key [2]int) string {
	return fmt.Sprintf("%d,%d", key[0], key[1])
}

// GetTile returns the shared tile handle for the tile containing (lat,lon),
// loading and inserting it on a miss. Concurrent misses for the same tile
// are coalesced onto a single load via singleflight.
func (s *Store) GetTile(lat, lon float64) (*Tile, error) {
	key := tileKey(floorTileIndex(lat), floorTileIndex(lon))

	s.mu.Lock()
	if t, ok := s.cache.Get(key); ok {
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	v, err, _ := s.sf.Do(sfKey(key), func() (interface{}, error) {
		t, loadErr := LoadTile(s.assetsRoot, key[0], key[1])
		if loadErr != nil {
			if lErr, ok := loadErr.(*LoadError); ok {
				slog.Error("terrain tile load failed, falling back to flat tile",
					"path", lErr.Path, "kind", lErr.Kind, "error", lErr.Err)
			}
			return flatTile(key[0], key[1]), nil
		}

		s.mu.Lock()
		s.cache.Add(key, t)
		s.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tile), nil
}

// Len returns the number of tiles currently resident in the cache.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Altitude samples the bilinearly-interpolated ground altitude at (lat,lon)
// in meters. A tile load failure (already folded into a flat fallback by
// GetTile) yields altitude 0, matching spec.md §4.1.
func (s *Store) Altitude(loc geom.LatLon) float64 {
	t, err := s.GetTile(loc.Lat, loc.Lon)
	if err != nil || t == nil {
		return 0
	}
	return bilinear(t, loc.Lat, loc.Lon)
}

// bilinear interpolates t's elevation grid at (lat,lon), clamping on edges.
// u = lon - lonDeg maps west->east into [0,1]; v = (latDeg+1) - lat maps
// north->south into [0,1] (row 0 is the northernmost row), per spec.md
// §4.1.
func bilinear(t *Tile, lat, lon float64) float64 {
	u := lon - float64(t.LonDeg)
	v := float64(t.LatDeg+1) - lat

	u = clamp01(u)
	v = clamp01(v)

	n := t.Size - 1
	fx := u * float64(n)
	fy := v * float64(n)

	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	x0 = clampInt(x0, 0, n)
	y0 = clampInt(y0, 0, n)
	x1 := clampInt(x0+1, 0, n)
	y1 := clampInt(y0+1, 0, n)

	tx := fx - float64(x0)
	ty := fy - float64(y0)

	v00 := float64(t.at(y0, x0))
	v10 := float64(t.at(y0, x1))
	v01 := float64(t.at(y1, x0))
	v11 := float64(t.at(y1, x1))

	top := v00 + (v10-v00)*tx
	bot := v01 + (v11-v01)*tx
	return top + (bot-top)*ty
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
