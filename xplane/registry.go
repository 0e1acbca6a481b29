package xplane

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ParseFunc builds a message from the fields that follow the header.
// now is the decode time, for messages that need a timestamp.
type ParseFunc func(fields []string, now time.Time) (Message, error)

// Registry maps type codes to parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]ParseFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]ParseFunc)}
}

// DefaultRegistry returns a registry holding every message type this
// package understands.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.mustRegister(TypeGPS, parseGPSFix)
	return r
}

// Register maps a 4-character type code to fn, replacing any previous parser.
func (r *Registry) Register(code string, fn ParseFunc) error {
	if len(code) != TypeCodeLen {
		return fmt.Errorf("type code %q must be %d characters", code, TypeCodeLen)
	}
	if fn == nil {
		return fmt.Errorf("nil parser for type code %q", code)
	}
	r.mu.Lock()
	r.parsers[code] = fn
	r.mu.Unlock()
	return nil
}

// Lookup returns the parser registered for code.
func (r *Registry) Lookup(code string) (ParseFunc, bool) {
	r.mu.RLock()
	fn, ok := r.parsers[code]
	r.mu.RUnlock()
	return fn, ok
}

// Codes lists the registered type codes in sorted order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	codes := make([]string, 0, len(r.parsers))
	for code := range r.parsers {
		codes = append(codes, code)
	}
	r.mu.RUnlock()
	sort.Strings(codes)
	return codes
}

func (r *Registry) mustRegister(code string, fn ParseFunc) {
	if err := r.Register(code, fn); err != nil {
		panic(err)
	}
}
