package packet

import (
	"time"

	"xplanemap/xplane"
)

// Sender tags X-Plane puts after the type code.
const (
	SenderSpecificIP = "1"
	SenderBroadcast  = "2"
)

// Packet is a decoded message on its way to the consumers.
type Packet struct {
	Sender   string         // Sender tag from the message header
	Message  xplane.Message // Decoded message
	Received time.Time      // When the datagram was dispatched
}

// GPSFix returns the packet's message as a GPS fix, if it is one.
func (p Packet) GPSFix() (xplane.GPSFix, bool) {
	fix, ok := p.Message.(xplane.GPSFix)
	return fix, ok
}

// Mode describes how the sender is transmitting.
func Mode(sender string) string {
	switch sender {
	case SenderSpecificIP:
		return "X-Plane specific IP mode"
	case SenderBroadcast:
		return "X-Plane broadcast mode"
	default:
		return sender
	}
}
