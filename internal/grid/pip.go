package grid

import "github.com/tilecast/hgtfetch/internal/core/model"

// Contains reports whether the point lies inside the ring, by even-odd ray
// casting toward +lon. The ring is treated as closed whether or not the last
// vertex repeats the first. Points exactly on an edge may fall on either
// side; callers relying on exactness must flag such tiles instead of
// trusting the result.
func Contains(ring model.Polygon, lon, lat float64) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat
		if (yi > lat) != (yj > lat) &&
			lon < (xj-xi)*(lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}
