package broadcast

import (
	"log/slog"
	"syscall"

	"golang.org/x/sys/unix"
)

type options struct {
	logger      *slog.Logger
	network     string
	reuseAddr   bool
	readBuffer  int
	stopOnEmpty bool
	observe     func(n int)
}

// Option configures a Listener.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:  slog.New(slog.DiscardHandler),
		network: "udp4",
	}
}

// WithLogger sets the logger used for socket lifecycle and drop events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithNetwork selects "udp4", "udp6" or "udp" (dual stack).
func WithNetwork(network string) Option {
	return func(o *options) {
		switch network {
		case "udp", "udp4", "udp6":
			o.network = network
		}
	}
}

// WithReuseAddr lets several processes bind the same broadcast port.
func WithReuseAddr(reuse bool) Option {
	return func(o *options) {
		o.reuseAddr = reuse
	}
}

// WithReadBuffer sets the kernel receive buffer size in bytes.
func WithReadBuffer(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.readBuffer = size
		}
	}
}

// WithStopOnEmpty makes a zero-length read shut the listener down, like an
// EOF on a stream socket. By default empty datagrams are dropped.
func WithStopOnEmpty(stop bool) Option {
	return func(o *options) {
		o.stopOnEmpty = stop
	}
}

// WithDatagramObserver registers a function called with the size of every
// datagram read, before it is resolved or handled.
func WithDatagramObserver(fn func(n int)) Option {
	return func(o *options) {
		o.observe = fn
	}
}

// control sets socket options before bind.
func (o options) control(_, _ string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
		if opErr != nil || !o.reuseAddr {
			return
		}
		if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); opErr != nil {
			return
		}
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
