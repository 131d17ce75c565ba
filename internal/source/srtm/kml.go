package srtm

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tilecast/hgtfetch/internal/tile"
)

// The coverage manifest is a KML MultiGeometry of polygons, holes included,
// whose boundaries follow whole-degree tile grid lines. Testing each
// candidate tile's center point against it is therefore equivalent to
// full-tile containment and avoids any edge ambiguity.

type kmlRing struct {
	Coordinates string `xml:"LinearRing>coordinates"`
}

type kmlPolygon struct {
	Outer kmlRing   `xml:"outerBoundaryIs"`
	Inner []kmlRing `xml:"innerBoundaryIs"`
}

type kmlDoc struct {
	Polygons []kmlPolygon `xml:"Document>Folder>Placemark>MultiGeometry>Polygon"`
}

type point struct {
	x, y float64
}

type coverageEdge struct {
	x1, y1, x2, y2 float64
}

// coverageMap answers center-point containment. Edges are bucketed per 1°
// latitude band so each query only inspects the edges that can cross its
// ray, keeping a world-wide scan near-linear instead of quadratic.
//
// Membership uses even-odd parity over every ring at once: the manifest's
// polygons are disjoint, so the parity of outer and hole crossings combined
// is exactly union-with-holes containment.
type coverageMap struct {
	bands                          map[int][]coverageEdge
	minLon, minLat, maxLon, maxLat float64
}

func parseCoverageKML(payload []byte) (*coverageMap, error) {
	var doc kmlDoc
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("parse coverage kml: %w", err)
	}
	if len(doc.Polygons) == 0 {
		return nil, fmt.Errorf("coverage kml contains no polygons")
	}

	cov := &coverageMap{
		bands:  make(map[int][]coverageEdge),
		minLon: math.Inf(1), minLat: math.Inf(1),
		maxLon: math.Inf(-1), maxLat: math.Inf(-1),
	}
	for _, poly := range doc.Polygons {
		outer, err := parseRing(poly.Outer.Coordinates)
		if err != nil {
			return nil, err
		}
		for _, p := range outer {
			cov.minLon = math.Min(cov.minLon, p.x)
			cov.maxLon = math.Max(cov.maxLon, p.x)
			cov.minLat = math.Min(cov.minLat, p.y)
			cov.maxLat = math.Max(cov.maxLat, p.y)
		}
		cov.addRing(outer)
		for _, inner := range poly.Inner {
			hole, err := parseRing(inner.Coordinates)
			if err != nil {
				return nil, err
			}
			cov.addRing(hole)
		}
	}
	return cov, nil
}

// parseRing decodes a KML coordinate string: whitespace-separated
// "lon,lat[,alt]" tuples.
func parseRing(s string) ([]point, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return nil, fmt.Errorf("coverage ring has %d vertices", len(fields))
	}
	ring := make([]point, 0, len(fields))
	for _, f := range fields {
		parts := strings.Split(f, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid kml coordinate %q", f)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid kml longitude %q: %w", parts[0], err)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid kml latitude %q: %w", parts[1], err)
		}
		ring = append(ring, point{x: lon, y: lat})
	}
	return ring, nil
}

func (c *coverageMap) addRing(ring []point) {
	n := len(ring)
	j := n - 1
	for i := 0; i < n; i++ {
		e := coverageEdge{
			x1: ring[j].x, y1: ring[j].y,
			x2: ring[i].x, y2: ring[i].y,
		}
		lo := int(math.Floor(math.Min(e.y1, e.y2)))
		hi := int(math.Floor(math.Max(e.y1, e.y2)))
		for b := lo; b <= hi; b++ {
			c.bands[b] = append(c.bands[b], e)
		}
		j = i
	}
}

func (c *coverageMap) contains(x, y float64) bool {
	inside := false
	for _, e := range c.bands[int(math.Floor(y))] {
		if (e.y1 > y) != (e.y2 > y) &&
			x < (e.x2-e.x1)*(y-e.y1)/(e.y2-e.y1)+e.x1 {
			inside = !inside
		}
	}
	return inside
}

// areasFromKML derives the set of covered tiles from a coverage manifest by
// scanning every candidate tile center within the manifest's bounds.
func areasFromKML(payload []byte) ([]string, error) {
	cov, err := parseCoverageKML(payload)
	if err != nil {
		return nil, err
	}
	var areas []string
	for lon := int(math.Floor(cov.minLon)); lon < int(math.Ceil(cov.maxLon)); lon++ {
		for lat := int(math.Floor(cov.minLat)); lat < int(math.Ceil(cov.maxLat)); lat++ {
			cx, cy := tile.Center(lon, lat)
			if cov.contains(cx, cy) {
				areas = append(areas, tile.Prefix(lon, lat))
			}
		}
	}
	return areas, nil
}
