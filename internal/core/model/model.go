// Package model defines core domain types shared across the module.
package model

import "fmt"

// Coordinates is a lon/lat pair in decimal degrees.
type Coordinates struct {
	Lon float64
	Lat float64
}

// Polygon is a closed ring of vertices. It is owned by the caller and only
// borrowed read-only by the geometry routines.
type Polygon []Coordinates

// BBox is an integer-tile-aligned bounding box. MinLon > MaxLon encodes a box
// crossing the antimeridian.
type BBox struct {
	MinLon, MinLat int
	MaxLon, MaxLat int
}

func (b BBox) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// TilePrefix names one candidate tile. CheckPoly marks tiles whose membership
// in the requested area could not be decided by corner testing alone;
// consumers must clip such tiles against the original polygon before trusting
// their content.
type TilePrefix struct {
	Name      string
	CheckPoly bool
}

// ResolvedTile is the per-tile output of the pool: a local file path plus the
// exactness flag carried over from grid classification.
type ResolvedTile struct {
	Path      string
	CheckPoly bool
}
