package nmea

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// connectSerial opens a serial port for writing sentences
func connectSerial(devicePath string, baudRate int) (io.WriteCloser, error) {
	if devicePath == "" {
		return nil, fmt.Errorf("no device path (e.g., /dev/ttyUSB0 or COM3) provided for NMEA serial")
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", devicePath, err)
	}
	return port, nil
}
