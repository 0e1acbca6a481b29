package xplane

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Decoder turns raw payloads into (sender, Message) pairs.
type Decoder struct {
	registry *Registry
	now      func() time.Time
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithDecoderRegistry replaces the default registry.
func WithDecoderRegistry(r *Registry) DecoderOption {
	return func(d *Decoder) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithDecoderClock sets the time source used to stamp messages.
func WithDecoderClock(now func() time.Time) DecoderOption {
	return func(d *Decoder) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDecoder creates a decoder using DefaultRegistry and time.Now.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		registry: DefaultRegistry(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the decoder's type table.
func (d *Decoder) Registry() *Registry {
	return d.registry
}

// Decode parses one datagram payload. On failure no message is returned and
// the error wraps one of the decoding sentinels. A successful result always
// has Type() equal to the wire type code.
func (d *Decoder) Decode(payload []byte) (sender string, msg Message, err error) {
	line := payloadText(payload)

	fields := strings.Split(line, ",")
	header := fields[0]
	if len(header) <= TypeCodeLen {
		return "", nil, fmt.Errorf("%w: %q", ErrShortHeader, header)
	}

	code, sender := header[:TypeCodeLen], header[TypeCodeLen:]
	parse, ok := d.registry.Lookup(code)
	if !ok {
		return sender, nil, fmt.Errorf("%w: %q", ErrUnknownType, code)
	}

	msg, err = parse(fields[1:], d.now())
	switch {
	case err != nil:
		return sender, nil, err
	case msg == nil:
		return sender, nil, fmt.Errorf("%w: %q", ErrNoMessage, code)
	case msg.Type() != code:
		return sender, nil, fmt.Errorf("%w: %q decoded as %q", ErrTypeMismatch, code, msg.Type())
	}
	return sender, msg, nil
}

// payloadText drops everything from the first NUL and any trailing
// whitespace or line terminator.
func payloadText(payload []byte) string {
	if i := bytes.IndexByte(payload, 0); i >= 0 {
		payload = payload[:i]
	}
	return strings.TrimRight(string(payload), " \t\r\n")
}
