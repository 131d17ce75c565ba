// Package tile encodes 1°×1° elevation cell identifiers. A tile is keyed by
// its south-west corner; the canonical form is hemisphere letters plus
// zero-padded magnitudes, e.g. N43E006 or S16W142.
package tile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Prefix returns the canonical identifier for the tile whose south-west
// corner is (lon, lat).
func Prefix(lon, lat int) string {
	ns, ew := byte('N'), byte('E')
	if lat < 0 {
		ns = 'S'
	}
	if lon < 0 {
		ew = 'W'
	}
	return fmt.Sprintf("%c%02d%c%03d", ns, abs(lat), ew, abs(lon))
}

var prefixRe = regexp.MustCompile(`^([NS])(\d{2})([EW])(\d{3})$`)

// Parse decodes an identifier back into its south-west corner. Lowercase
// identifiers are accepted; sources that serve lowercase filenames still
// index by the same cell.
func Parse(name string) (lon, lat int, err error) {
	m := prefixRe.FindStringSubmatch(strings.ToUpper(name))
	if m == nil {
		return 0, 0, fmt.Errorf("invalid tile identifier %q", name)
	}
	lat, _ = strconv.Atoi(m[2])
	lon, _ = strconv.Atoi(m[4])
	if m[1] == "S" {
		lat = -lat
	}
	if m[3] == "W" {
		lon = -lon
	}
	return lon, lat, nil
}

// Center returns the tile's center point.
func Center(lon, lat int) (float64, float64) {
	return float64(lon) + 0.5, float64(lat) + 0.5
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
