package xplane

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// gpsFieldNames is the wire order of XGPS fields.
var gpsFieldNames = [...]string{"longitude", "latitude", "altitude", "course", "speed"}

// parseGPSFix decodes "lon,lat,alt,course,speed".
func parseGPSFix(fields []string, now time.Time) (Message, error) {
	if len(fields) != len(gpsFieldNames) {
		return nil, fmt.Errorf("%w: %s expects %d, got %d",
			ErrFieldCount, TypeGPS, len(gpsFieldNames), len(fields))
	}

	var values [len(gpsFieldNames)]float64
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s %s %q", ErrInvalidField, TypeGPS, gpsFieldNames[i], field)
		}
		values[i] = v
	}

	return GPSFix{
		Longitude: values[0],
		Latitude:  values[1],
		Altitude:  values[2],
		Course:    values[3],
		Speed:     values[4],
		Timestamp: now,
	}, nil
}
