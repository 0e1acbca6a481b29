// Package xplane decodes the X-Plane UDP broadcast text protocol and
// dispatches typed messages to a consumer.
//
// A datagram is one ASCII line of comma-separated fields. The first field
// joins a 4-character type code and a sender tag with no separator, for
// example "XGPS2,-122.4,37.8,30.5,90.0,12.3".
package xplane

import (
	"errors"
	"time"
)

// DefaultPort is the port X-Plane broadcasts its GPS output on.
const DefaultPort = 49002

// TypeCodeLen is the length of a message type code.
const TypeCodeLen = 4

// TypeGPS is the type code of GPS fix messages.
const TypeGPS = "XGPS"

// Decoding failures. Every error returned by Decode wraps one of these.
var (
	ErrShortHeader  = errors.New("message header too short")
	ErrUnknownType  = errors.New("unhandled message type")
	ErrFieldCount   = errors.New("wrong number of fields")
	ErrInvalidField = errors.New("invalid field")
	ErrNoMessage    = errors.New("parser returned no message")
	ErrTypeMismatch = errors.New("decoded message type does not match type code")
)

// Message is a decoded X-Plane message.
type Message interface {
	// Type returns the 4-character wire type code.
	Type() string
}

// GPSFix is an XGPS message. Timestamp is set when the message is decoded;
// the protocol does not carry one.
type GPSFix struct {
	Longitude float64   `json:"longitude"` // degrees
	Latitude  float64   `json:"latitude"`  // degrees
	Altitude  float64   `json:"altitude"`  // meters MSL
	Course    float64   `json:"course"`    // degrees true
	Speed     float64   `json:"speed"`     // meters per second over ground
	Timestamp time.Time `json:"timestamp"`
}

// Type implements Message.
func (GPSFix) Type() string { return TypeGPS }
