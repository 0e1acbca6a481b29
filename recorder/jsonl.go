// Package recorder appends decoded messages to a JSON Lines track file.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"xplanemap/logging"
	"xplanemap/packet"
)

type JSONLWriter struct {
	enc    *json.Encoder
	logger *slog.Logger
}

type record struct {
	TS        string   `json:"ts"`
	Sender    string   `json:"sender"`
	Type      string   `json:"type"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Course    *float64 `json:"course,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Data      any      `json:"data,omitempty"`
}

func NewJSONLWriter(w io.Writer, logger *slog.Logger) *JSONLWriter {
	if logger == nil {
		logger = logging.Discard()
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{
		enc:    enc,
		logger: logger.With(logging.Component("recorder")),
	}
}

// OpenFile opens path for appending, creating it if needed.
func OpenFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open track file %s: %w", path, err)
	}
	return f, nil
}

// Consume writes one line per packet until ctx is done or in is closed.
func (j *JSONLWriter) Consume(ctx context.Context, in <-chan packet.Packet) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-in:
			if !ok {
				return
			}
			if err := j.Write(pkt); err != nil {
				j.logger.Warn("Cannot record message", logging.Error(err))
			}
		}
	}
}

func (j *JSONLWriter) Write(pkt packet.Packet) error {
	if pkt.Message == nil {
		return nil
	}
	ts := pkt.Received
	if ts.IsZero() {
		ts = time.Now()
	}

	rec := record{
		TS:     ts.UTC().Format(time.RFC3339Nano),
		Sender: pkt.Sender,
		Type:   pkt.Message.Type(),
	}
	if fix, ok := pkt.GPSFix(); ok {
		rec.Latitude = &fix.Latitude
		rec.Longitude = &fix.Longitude
		rec.Altitude = &fix.Altitude
		rec.Course = &fix.Course
		rec.Speed = &fix.Speed
	} else {
		rec.Data = pkt.Message
	}
	return j.enc.Encode(rec)
}
