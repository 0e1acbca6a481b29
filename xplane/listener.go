package xplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"xplanemap/device/broadcast"
	"xplanemap/logging"
	"xplanemap/metrics"
)

// Handler receives every successfully decoded message with its sender tag.
// It runs on the listener's read goroutine and must not block.
type Handler func(sender string, msg Message)

// Listener listens for X-Plane broadcasts, decodes them and dispatches
// messages to a Handler.
type Listener struct {
	socket  *broadcast.Listener
	decoder *Decoder
	handler Handler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type listenerOptions struct {
	port       int
	logger     *slog.Logger
	registry   *Registry
	now        func() time.Time
	metrics    *metrics.Metrics
	socketOpts []broadcast.Option
}

// Option configures a Listener.
type Option func(*listenerOptions)

// WithPort overrides DefaultPort.
func WithPort(port int) Option {
	return func(o *listenerOptions) {
		o.port = port
	}
}

// WithLogger sets the logger for socket and decode events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *listenerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegistry replaces the default message type table.
func WithRegistry(r *Registry) Option {
	return func(o *listenerOptions) {
		o.registry = r
	}
}

// WithClock sets the time source used to stamp decoded messages.
func WithClock(now func() time.Time) Option {
	return func(o *listenerOptions) {
		o.now = now
	}
}

// WithMetrics records datagram and decode counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *listenerOptions) {
		o.metrics = m
	}
}

// WithSocketOptions passes options through to the broadcast socket.
func WithSocketOptions(opts ...broadcast.Option) Option {
	return func(o *listenerOptions) {
		o.socketOpts = append(o.socketOpts, opts...)
	}
}

// NewListener binds the X-Plane broadcast port and starts dispatching
// decoded messages to handler. A bind failure is returned as an error.
func NewListener(handler Handler, opts ...Option) (*Listener, error) {
	if handler == nil {
		return nil, errors.New("xplane listener requires a handler")
	}

	o := listenerOptions{
		port:   DefaultPort,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	l := &Listener{
		decoder: NewDecoder(WithDecoderRegistry(o.registry), WithDecoderClock(o.now)),
		handler: handler,
		logger:  o.logger,
		metrics: o.metrics,
	}

	socketOpts := []broadcast.Option{
		broadcast.WithLogger(o.logger.With(logging.Component("broadcast"))),
		broadcast.WithDatagramObserver(o.metrics.ObserveDatagram),
	}
	socketOpts = append(socketOpts, o.socketOpts...)

	socket, err := broadcast.Listen(o.port, l.handleDatagram, socketOpts...)
	if err != nil {
		return nil, fmt.Errorf("cannot initialize X-Plane listener: %w", err)
	}
	l.socket = socket
	return l, nil
}

// Addr returns the bound socket address.
func (l *Listener) Addr() net.Addr {
	return l.socket.LocalAddr()
}

// Done is closed when the listener has stopped.
func (l *Listener) Done() <-chan struct{} {
	return l.socket.Done()
}

// Err reports a socket failure that stopped the listener.
func (l *Listener) Err() error {
	return l.socket.Err()
}

// Close stops listening. It is safe to call more than once.
func (l *Listener) Close() error {
	return l.socket.Close()
}

// handleDatagram runs on the socket's read goroutine. A panicking parser or
// handler drops the datagram instead of stopping the listener.
func (l *Listener) handleDatagram(ep broadcast.Endpoint, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			l.metrics.Dropped(metrics.ReasonPanic)
			l.logger.Error("Recovered from panic while handling datagram",
				slog.String("from", ep.String()),
				slog.Any("panic", r),
			)
		}
	}()

	if l.logger.Enabled(context.Background(), slog.LevelDebug) {
		l.logger.Debug("Receiving datagram",
			slog.String("from", ep.String()),
			slog.String("payload", payloadText(payload)),
		)
	}

	sender, msg, err := l.decoder.Decode(payload)
	if err != nil {
		l.reject(ep, err)
		return
	}

	l.metrics.Decoded(msg.Type())
	l.handler(sender, msg)
}

// reject logs a dropped datagram at a level matching the failure.
func (l *Listener) reject(ep broadcast.Endpoint, err error) {
	from := slog.String("from", ep.String())

	switch {
	case errors.Is(err, ErrShortHeader):
		l.metrics.Dropped(metrics.ReasonShortHeader)
		l.logger.Debug("Dropping datagram", from, logging.Error(err))
	case errors.Is(err, ErrUnknownType):
		l.metrics.Dropped(metrics.ReasonUnknownType)
		l.logger.Warn("Unhandled message", from, logging.Error(err))
	case errors.Is(err, ErrFieldCount):
		l.metrics.Dropped(metrics.ReasonFieldCount)
		l.logger.Error("Cannot parse message", from, logging.Error(err))
	case errors.Is(err, ErrInvalidField):
		l.metrics.Dropped(metrics.ReasonInvalidField)
		l.logger.Error("Cannot parse message", from, logging.Error(err))
	case errors.Is(err, ErrNoMessage):
		l.metrics.Dropped(metrics.ReasonNoMessage)
		l.logger.Error("Cannot parse message", from, logging.Error(err))
	case errors.Is(err, ErrTypeMismatch):
		l.metrics.Dropped(metrics.ReasonTypeMismatch)
		l.logger.Error("Parser returned the wrong message type", from, logging.Error(err))
	default:
		l.metrics.Dropped(metrics.ReasonOther)
		l.logger.Error("Cannot parse message", from, logging.Error(err))
	}
}
