package tile

import "testing"

func TestPrefix(t *testing.T) {
	cases := []struct {
		lon, lat int
		want     string
	}{
		{6, 43, "N43E006"},
		{-142, -16, "S16W142"},
		{0, 0, "N00E000"},
		{-1, -1, "S01W001"},
		{179, 0, "N00E179"},
		{-180, 0, "N00W180"},
		{12, -56, "S56E012"},
	}
	for _, c := range cases {
		if got := Prefix(c.lon, c.lat); got != c.want {
			t.Errorf("Prefix(%d, %d) = %q, want %q", c.lon, c.lat, got, c.want)
		}
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		name     string
		lon, lat int
	}{
		{"N43E006", 6, 43},
		{"S16W142", -142, -16},
		{"n00e000", 0, 0},
		{"s01w001", -1, -1},
		{"N00W180", -180, 0},
	}
	for _, c := range cases {
		lon, lat, err := Parse(c.name)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.name, err)
		}
		if lon != c.lon || lat != c.lat {
			t.Errorf("Parse(%q) = (%d, %d), want (%d, %d)", c.name, lon, lat, c.lon, c.lat)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, name := range []string{"", "N43", "X43E006", "N4E006", "N43E06", "N43E0066", "N43W006x"} {
		if _, _, err := Parse(name); err == nil {
			t.Errorf("Parse(%q) accepted a malformed identifier", name)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	for lon := -180; lon < 180; lon += 37 {
		for lat := -90; lat < 90; lat += 23 {
			name := Prefix(lon, lat)
			gotLon, gotLat, err := Parse(name)
			if err != nil {
				t.Fatalf("Parse(%q): %v", name, err)
			}
			if gotLon != lon || gotLat != lat {
				t.Fatalf("round trip %q = (%d, %d), want (%d, %d)", name, gotLon, gotLat, lon, lat)
			}
		}
	}
}

func TestCenter(t *testing.T) {
	lon, lat := Center(6, 43)
	if lon != 6.5 || lat != 43.5 {
		t.Errorf("Center(6, 43) = (%v, %v), want (6.5, 43.5)", lon, lat)
	}
	lon, lat = Center(-142, -16)
	if lon != -141.5 || lat != -15.5 {
		t.Errorf("Center(-142, -16) = (%v, %v), want (-141.5, -15.5)", lon, lat)
	}
}
