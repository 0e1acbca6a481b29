// Package nmea relays GPS fixes as NMEA 0183 sentences to a serial port or a
// TCP listener, so chart plotters and moving-map software can follow the
// simulator.
package nmea

import (
	"fmt"
	"math"
	"strings"
	"time"

	"xplanemap/xplane"
)

// KnotsPerMeterPerSecond converts the fix speed to the unit NMEA uses.
const KnotsPerMeterPerSecond = 1.943844

// Checksum is the XOR of every byte between '$' and '*'.
func Checksum(body string) byte {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return sum
}

func sentence(fields ...string) string {
	body := strings.Join(fields, ",")
	return fmt.Sprintf("$%s*%02X\r\n", body, Checksum(body))
}

// formatLat renders degrees as ddmm.mmmm with its hemisphere.
func formatLat(lat float64) (string, string) {
	hemi := "N"
	if lat < 0 {
		hemi = "S"
	}
	deg, min := splitDegrees(lat)
	return fmt.Sprintf("%02d%02d.%04d", deg, min/10000, min%10000), hemi
}

// formatLon renders degrees as dddmm.mmmm with its hemisphere.
func formatLon(lon float64) (string, string) {
	hemi := "E"
	if lon < 0 {
		hemi = "W"
	}
	deg, min := splitDegrees(lon)
	return fmt.Sprintf("%03d%02d.%04d", deg, min/10000, min%10000), hemi
}

// splitDegrees returns whole degrees and minutes in 1/10000 units, rounded
// so that 59.99995 minutes carries into the next degree.
func splitDegrees(v float64) (int, int) {
	total := int(math.Round(math.Abs(v) * 60 * 10000))
	return total / 600000, total % 600000
}

func fixTime(fix xplane.GPSFix) time.Time {
	if fix.Timestamp.IsZero() {
		return time.Now().UTC()
	}
	return fix.Timestamp.UTC()
}

// RMC formats a recommended minimum sentence for fix.
func RMC(talker string, fix xplane.GPSFix) string {
	ts := fixTime(fix)
	lat, ns := formatLat(fix.Latitude)
	lon, ew := formatLon(fix.Longitude)
	return sentence(
		talker+"RMC",
		ts.Format("150405.00"),
		"A",
		lat, ns,
		lon, ew,
		fmt.Sprintf("%.1f", fix.Speed*KnotsPerMeterPerSecond),
		fmt.Sprintf("%.1f", math.Mod(fix.Course+360, 360)),
		ts.Format("020106"),
		"", "",
		"A",
	)
}

// GGA formats a fix data sentence for fix. Satellite count and dilution are
// fixed; the simulator does not report them.
func GGA(talker string, fix xplane.GPSFix) string {
	ts := fixTime(fix)
	lat, ns := formatLat(fix.Latitude)
	lon, ew := formatLon(fix.Longitude)
	return sentence(
		talker+"GGA",
		ts.Format("150405.00"),
		lat, ns,
		lon, ew,
		"1",
		"08",
		"1.0",
		fmt.Sprintf("%.1f", fix.Altitude), "M",
		"0.0", "M",
		"", "",
	)
}
