package mapview

import (
	"fmt"
	"math"
	"strings"
)

// GridSquareToLatLon converts a Maidenhead gridsquare (like "CM87" or "CM87tt")
// to the longitude (X) and latitude (Y) of its center.
func GridSquareToLatLon(grid string) (float64, float64, error) {
	grid = strings.ToUpper(strings.TrimSpace(grid))
	if len(grid) < 4 {
		return 0, 0, fmt.Errorf("gridsquare too short: %s", grid)
	}
	if !inRange(grid[0], 'A', 'R') || !inRange(grid[1], 'A', 'R') ||
		!inRange(grid[2], '0', '9') || !inRange(grid[3], '0', '9') {
		return 0, 0, fmt.Errorf("invalid gridsquare: %s", grid)
	}

	// Field: 20° lon by 10° lat, square: 2° by 1°.
	lon := float64(grid[0]-'A')*20.0 - 180.0 + float64(grid[2]-'0')*2.0
	lat := float64(grid[1]-'A')*10.0 - 90.0 + float64(grid[3]-'0')*1.0

	if len(grid) < 6 {
		return lon + 1.0, lat + 0.5, nil
	}

	if !inRange(grid[4], 'A', 'X') || !inRange(grid[5], 'A', 'X') {
		return 0, 0, fmt.Errorf("invalid gridsquare subsquare: %s", grid)
	}
	// Subsquare: 5' lon by 2.5' lat, then its center.
	lon += float64(grid[4]-'A')*(2.0/24.0) + 1.0/24.0
	lat += float64(grid[5]-'A')*(1.0/24.0) + 0.5/24.0
	return lon, lat, nil
}

// LatLonToGridSquare returns the 6-character locator of a position, with the
// subsquare in lower case.
func LatLonToGridSquare(lon, lat float64) string {
	// The locator grid is half open; the east and north edges fold back in.
	lon = math.Min(math.Max(lon+180.0, 0), 360.0-1e-9)
	lat = math.Min(math.Max(lat+90.0, 0), 180.0-1e-9)

	b := []byte{
		'A' + byte(lon/20.0),
		'A' + byte(lat/10.0),
		'0' + byte(math.Mod(lon, 20.0)/2.0),
		'0' + byte(math.Mod(lat, 10.0)),
		'a' + byte(math.Mod(lon, 2.0)*12.0),
		'a' + byte(math.Mod(lat, 1.0)*24.0),
	}
	return string(b)
}

func inRange(c, lo, hi byte) bool {
	return c >= lo && c <= hi
}
