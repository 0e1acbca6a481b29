package nmea

import (
	"fmt"
	"net"
	"time"
)

// connectTCP dials an NMEA listener at the given address (e.g., "192.168.1.30:10110")
func connectTCP(address string) (net.Conn, error) {
	if address == "" {
		return nil, fmt.Errorf("no device address (ip:port) provided for NMEA TCP")
	}

	conn, err := net.DialTimeout("tcp", address, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NMEA listener at %s: %w", address, err)
	}
	return conn, nil
}
