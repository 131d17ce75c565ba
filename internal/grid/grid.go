// Package grid computes which 1°×1° tiles cover a requested area. The area is
// a bounding box string plus an optional set of polygons; the output is the
// ordered list of tile identifiers, each flagged when exact polygon clipping
// is still required downstream.
package grid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tilecast/hgtfetch/internal/core/model"
	"github.com/tilecast/hgtfetch/internal/tile"
)

// ErrAreaFormat is returned for area strings that do not contain exactly four
// parseable decimals.
var ErrAreaFormat = errors.New("area must be minLon:minLat:maxLon:maxLat")

// CalcBBox parses a colon-delimited area string, subtracts the correction
// offsets and snaps outward to whole-degree tile edges: floor for minima,
// ceil for maxima, exact integers unchanged. The result always fully contains
// the requested real-valued area.
func CalcBBox(area string, corrX, corrY float64) (model.BBox, error) {
	parts := strings.Split(area, ":")
	if len(parts) != 4 {
		return model.BBox{}, fmt.Errorf("%w: %q", ErrAreaFormat, area)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.BBox{}, fmt.Errorf("%w: %q", ErrAreaFormat, area)
		}
		vals[i] = v
	}
	return model.BBox{
		MinLon: int(math.Floor(vals[0] - corrX)),
		MinLat: int(math.Floor(vals[1] - corrY)),
		MaxLon: int(math.Ceil(vals[2] - corrX)),
		MaxLat: int(math.Ceil(vals[3] - corrY)),
	}, nil
}

func lowInt(v float64) int {
	return int(math.Floor(v))
}

// crossings returns the integer grid lines k with ceil(min) <= k < ceil(max),
// i.e. the lines an edge spanning [a,b] actually crosses.
func crossings(a, b float64) []int {
	if a > b {
		a, b = b, a
	}
	lo, hi := int(math.Ceil(a)), int(math.Ceil(b))
	out := make([]int, 0, hi-lo)
	for k := lo; k < hi; k++ {
		out = append(out, k)
	}
	return out
}

// IntersectTiles returns the set of tiles any polygon boundary cuts through.
// Those tiles cannot be classified by corner testing alone and must be
// clipped exactly downstream. A single-vertex ring has no edges and yields
// nothing.
func IntersectTiles(polys []model.Polygon, corrX, corrY float64) map[string]struct{} {
	tiles := make(map[string]struct{})
	add := func(lon, lat int) {
		tiles[tile.Prefix(lon, lat)] = struct{}{}
	}
	for _, poly := range polys {
		if len(poly) == 0 {
			continue
		}
		xLast := poly[0].Lon - corrX
		yLast := poly[0].Lat - corrY
		for _, v := range poly[1:] {
			x := v.Lon - corrX
			y := v.Lat - corrY
			add(lowInt(x), lowInt(y))
			switch {
			case x == xLast:
				// vertical edge, no slope to compute
				for _, k := range crossings(y, yLast) {
					add(lowInt(x), k)
				}
			case y == yLast:
				// horizontal edge
				for _, k := range crossings(x, xLast) {
					add(k, lowInt(y))
				}
			default:
				s := (y - yLast) / (x - xLast)
				o := yLast - xLast*s
				for _, gx := range crossings(x, xLast) {
					// intersection with a longitude grid line: both adjacent tiles
					gy := lowInt(s*float64(gx) + o)
					add(gx-1, gy)
					add(gx, gy)
				}
				for _, gy := range crossings(y, yLast) {
					// intersection with a latitude grid line
					gx := lowInt((float64(gy) - o) / s)
					add(gx, gy-1)
					add(gx, gy)
				}
			}
			xLast, yLast = x, y
		}
	}
	return tiles
}

// AreaNeeded decides whether the tile at (lon, lat) is covered by the request.
// Without polygons every tile inside the bbox is needed. With polygons the
// tile's four corners are tested against every ring; mixed results mean a
// polygon vertex may sit exactly on the tile border, so the tile is accepted
// with the check flag raised rather than trusted either way.
func AreaNeeded(lon, lat int, bbox model.BBox, polys []model.Polygon, corrX, corrY float64) (needed, checkPoly bool) {
	if len(polys) == 0 {
		return true, false
	}
	minLon := float64(lon) + corrX
	maxLon := minLon + 1
	minLat := float64(lat) + corrY
	maxLat := minLat + 1

	bMinLon := float64(bbox.MinLon) + corrX
	bMaxLon := float64(bbox.MaxLon) + corrX
	bMinLat := float64(bbox.MinLat) + corrY
	bMaxLat := float64(bbox.MaxLat) + corrY
	if minLon == bMinLon && minLat == bMinLat && maxLon == bMaxLon && maxLat == bMaxLat {
		// the polygon's bbox was itself a single tile
		return true, true
	}

	corners := [4]model.Coordinates{
		{Lon: minLon, Lat: minLat},
		{Lon: minLon, Lat: maxLat},
		{Lon: maxLon, Lat: minLat},
		{Lon: maxLon, Lat: maxLat},
	}
	var inside [4]bool
	for _, p := range polys {
		for i, c := range corners {
			if Contains(p, c.Lon, c.Lat) {
				inside[i] = true
			}
		}
	}
	all, any := true, false
	for _, in := range inside {
		all = all && in
		any = any || in
	}
	switch {
	case all:
		return true, false
	case !any:
		return false, false
	default:
		return true, true
	}
}

// Prefixes lists the tiles needed to cover bbox, restricted by the optional
// polygons, in longitude-major order. Boundary-crossing tiles always carry
// the check flag and skip corner classification. A bbox with MinLon > MaxLon
// is iterated across the antimeridian: MinLon up to 180, then -180 up to
// MaxLon. Sources serving lowercase filenames can ask for lowercase names.
func Prefixes(bbox model.BBox, polys []model.Polygon, corrX, corrY float64, lowercase bool) []model.TilePrefix {
	crossed := IntersectTiles(polys, corrX, corrY)

	var lons []int
	if bbox.MinLon > bbox.MaxLon {
		for lon := bbox.MinLon; lon < 180; lon++ {
			lons = append(lons, lon)
		}
		for lon := -180; lon < bbox.MaxLon; lon++ {
			lons = append(lons, lon)
		}
	} else {
		for lon := bbox.MinLon; lon < bbox.MaxLon; lon++ {
			lons = append(lons, lon)
		}
	}

	var out []model.TilePrefix
	for _, lon := range lons {
		for lat := bbox.MinLat; lat < bbox.MaxLat; lat++ {
			name := tile.Prefix(lon, lat)
			if _, ok := crossed[name]; ok {
				out = append(out, model.TilePrefix{Name: name, CheckPoly: true})
				continue
			}
			needed, checkPoly := AreaNeeded(lon, lat, bbox, polys, corrX, corrY)
			if needed {
				out = append(out, model.TilePrefix{Name: name, CheckPoly: checkPoly})
			}
		}
	}
	if lowercase {
		for i := range out {
			out[i].Name = strings.ToLower(out[i].Name)
		}
	}
	return out
}
