package terrain

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/skywave-radar/coverage/internal/geom"
)

func writeHGT(t *testing.T, dir string, latDeg, lonDeg, size int, fill func(r, c int) int16) string {
	t.Helper()
	name := tileFileName(latDeg, lonDeg)
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create hgt: %v", err)
	}
	defer f.Close()

	buf := make([]int16, size*size)
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			buf[r*size+c] = fill(r, c)
		}
	}
	if err := binary.Write(f, binary.BigEndian, buf); err != nil {
		t.Fatalf("write hgt: %v", err)
	}
	return path
}

func TestLoadTileMissingAssetFallsBackFlat(t *testing.T) {
	dir := t.TempDir()
	tile, err := LoadTile(dir, 10, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, e := range tile.Elevations {
		if e != 0 {
			t.Fatalf("expected flat zero tile, found nonzero elevation")
		}
	}
}

func TestLoadTileSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, tileFileName(10, 20))
	if err := os.WriteFile(path, make([]byte, 123), 0o644); err != nil {
		t.Fatalf("write bad file: %v", err)
	}
	_, err := LoadTile(dir, 10, 20)
	if err == nil {
		t.Fatal("expected size-mismatch error")
	}
	lErr, ok := err.(*LoadError)
	if !ok || lErr.Kind != KindSizeMismatch {
		t.Fatalf("expected KindSizeMismatch, got %v", err)
	}
}

func TestLoadTile3ArcSecond(t *testing.T) {
	dir := t.TempDir()
	writeHGT(t, dir, 1, 1, size3Arc, func(r, c int) int16 { return 100 })
	tile, err := LoadTile(dir, 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tile.Size != size3Arc {
		t.Fatalf("expected size %d, got %d", size3Arc, tile.Size)
	}
}

func TestBilinearCornersMatchSamples(t *testing.T) {
	dir := t.TempDir()
	const size = size3Arc
	// Row 0 = north edge (lat = latDeg+1); row size-1 = south edge (lat = latDeg).
	// Column 0 = west edge (lon = lonDeg); column size-1 = east edge (lon = lonDeg+1).
	writeHGT(t, dir, 10, 20, size, func(r, c int) int16 {
		if r == 0 && c == 0 {
			return 100 // NW corner
		}
		if r == size-1 && c == size-1 {
			return 200 // SE corner
		}
		return 0
	})
	store, err := NewStore(dir, 8)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	// The north and east edges (lat 11, lon 21) floor into neighbouring
	// tiles, so the corners are sampled on the loaded tile directly.
	tile, err := store.GetTile(10.5, 20.5)
	if err != nil {
		t.Fatalf("get tile: %v", err)
	}

	nw := bilinear(tile, 11, 20)
	if nw != 100 {
		t.Errorf("NW corner altitude = %v, want 100", nw)
	}

	se := bilinear(tile, 10, 21)
	if se != 200 {
		t.Errorf("SE corner altitude = %v, want 200", se)
	}
}

func TestStoreLRUEviction(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 2)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for i := 0; i < 5; i++ {
		store.Altitude(geom.LatLon{Lat: float64(i) + 0.5, Lon: 0.5})
	}

	if store.Len() > 2 {
		t.Errorf("store.Len() = %d, want <= 2 (capacity)", store.Len())
	}
}

func TestFloorTileIndexTieBreak(t *testing.T) {
	if floorTileIndex(10.0) != 10 {
		t.Errorf("exact boundary should select southern/western tile")
	}
	if floorTileIndex(9.999) != 9 {
		t.Errorf("floor(9.999) should be 9")
	}
}
