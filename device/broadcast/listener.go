// Package broadcast owns a connectionless UDP socket bound for broadcast
// telemetry and feeds every datagram to a single handler.
//
// The socket is watched by the Go runtime network poller. Each readiness
// notification performs exactly one non-blocking recvfrom, and the handler
// runs on the listener's single read goroutine, so handlers must return
// promptly and must not keep the payload slice after returning.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"xplanemap/logging"
)

// MaxDatagramSize is the receive buffer size. Longer datagrams are truncated.
const MaxDatagramSize = 512

// ErrEmptyDatagram is reported by Err when a zero-length read stopped a
// listener configured with WithStopOnEmpty.
var ErrEmptyDatagram = errors.New("recvfrom returned no data")

// Handler receives the sender endpoint and the datagram payload.
type Handler func(ep Endpoint, payload []byte)

// Listener is a UDP socket bound to the wildcard address.
type Listener struct {
	conn    *net.UDPConn
	raw     syscall.RawConn
	handler Handler
	logger  *slog.Logger

	stopOnEmpty bool
	observe     func(n int)

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Listen binds a UDP socket on port and starts delivering datagrams to handler.
// A socket or bind failure returns an error and no listener.
func Listen(port int, handler Handler, opts ...Option) (*Listener, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid UDP port %d", port)
	}
	if handler == nil {
		return nil, errors.New("broadcast listener requires a handler")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	lc := net.ListenConfig{Control: o.control}
	pc, err := lc.ListenPacket(context.Background(), o.network, net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("failed to bind UDP port %d: %w", port, err)
	}
	conn := pc.(*net.UDPConn)

	if o.readBuffer > 0 {
		if err := conn.SetReadBuffer(o.readBuffer); err != nil {
			o.logger.Warn("Failed to set UDP read buffer size",
				slog.Int("buffer_size", o.readBuffer),
				logging.Error(err),
			)
		}
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to access UDP socket: %w", err)
	}

	l := &Listener{
		conn:        conn,
		raw:         raw,
		handler:     handler,
		logger:      o.logger,
		stopOnEmpty: o.stopOnEmpty,
		observe:     o.observe,
		done:        make(chan struct{}),
	}

	l.logger.Info("UDP listener started",
		slog.String("address", conn.LocalAddr().String()),
		slog.String("network", o.network),
	)

	go l.readLoop()
	return l, nil
}

// LocalAddr returns the bound address.
func (l *Listener) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// Done is closed once the read loop has exited.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Err returns the error that stopped the listener on its own, or nil while
// it is running or after an explicit Close.
func (l *Listener) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Close cancels the readability watch, shuts down both directions of the
// socket and releases the descriptor. Calling it again is a no-op.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.closing.Store(true)

		cerr := l.raw.Control(func(fd uintptr) {
			// Unconnected UDP sockets report ENOTCONN but are still shut down.
			if serr := unix.Shutdown(int(fd), unix.SHUT_RDWR); serr != nil && serr != unix.ENOTCONN {
				l.logger.Debug("UDP socket shutdown failed", logging.Error(serr))
			}
		})
		if cerr != nil {
			l.logger.Debug("UDP socket control failed", logging.Error(cerr))
		}

		err = l.conn.Close()
		l.logger.Info("Closing UDP socket", slog.String("address", l.conn.LocalAddr().String()))
	})
	return err
}

func (l *Listener) readLoop() {
	defer close(l.done)

	for {
		buf := make([]byte, MaxDatagramSize)
		n, from, err := l.recv(buf)
		if l.closing.Load() {
			return
		}
		if err != nil {
			l.logger.Error("recvfrom failed, closing listener", logging.Error(err))
			l.err = err
			l.Close()
			return
		}

		if l.observe != nil {
			l.observe(n)
		}

		if n == 0 {
			if l.stopOnEmpty {
				l.logger.Warn("recvfrom returned EOF, closing listener")
				l.err = ErrEmptyDatagram
				l.Close()
				return
			}
			l.logger.Debug("Dropping empty datagram")
			continue
		}

		ep, err := ResolveEndpoint(from)
		if err != nil {
			l.logger.Warn("Failed to get the address and port of the sender",
				slog.Int("size", n),
				logging.Error(err),
			)
			continue
		}

		l.handler(ep, buf[:n])
	}
}

// recv performs one non-blocking recvfrom, waiting on the poller while the
// socket has nothing to read.
func (l *Listener) recv(buf []byte) (n int, from unix.Sockaddr, err error) {
	rerr := l.raw.Read(func(fd uintptr) bool {
		for {
			n, from, err = unix.Recvfrom(int(fd), buf, unix.MSG_DONTWAIT)
			if err != unix.EINTR {
				break
			}
		}
		return err != unix.EAGAIN && err != unix.EWOULDBLOCK
	})
	if rerr != nil {
		return 0, nil, rerr
	}
	return n, from, err
}
