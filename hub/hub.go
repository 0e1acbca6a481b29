// Package hub fans decoded packets out to every consumer without ever
// blocking the publisher.
//
// Publish is called from the UDP read goroutine, so it drops instead of
// waiting when the queue is full. Subscribers that fall behind lose packets
// rather than stalling the others. Once Run returns, Subscribe hands back a
// closed channel and Unsubscribe is a no-op.
package hub

import (
	"context"

	"xplanemap/packet"
)

// Hub owns the subscriber set. All state is confined to the Run goroutine.
type Hub struct {
	broadcast  chan packet.Packet
	register   chan chan packet.Packet
	unregister chan chan packet.Packet
	clients    map[chan packet.Packet]struct{}
	clientBuf  int
	onDrop     func()
	done       chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithBroadcastBuffer sets the publish queue length (default 256).
func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan packet.Packet, size)
		}
	}
}

// WithClientBuffer sets the default subscriber channel length (default 100).
func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

// WithDropHandler is called for every packet dropped, either because the
// broadcast queue is full or because a subscriber is too slow.
func WithDropHandler(fn func()) Option {
	return func(h *Hub) {
		h.onDrop = fn
	}
}

// New creates a hub. Nothing is delivered until Run is started.
func New(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan packet.Packet, 256),
		register:   make(chan chan packet.Packet),
		unregister: make(chan chan packet.Packet),
		clients:    make(map[chan packet.Packet]struct{}),
		clientBuf:  100,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run delivers packets until ctx is done, then closes every subscription.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for ch := range h.clients {
				close(ch)
			}
			return
		case ch := <-h.register:
			h.clients[ch] = struct{}{}
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case pkt := <-h.broadcast:
			for ch := range h.clients {
				select {
				case ch <- pkt:
				default:
					h.drop()
				}
			}
		}
	}
}

// Subscribe registers a subscriber with the default buffer length.
func (h *Hub) Subscribe() chan packet.Packet {
	return h.SubscribeWithBuffer(h.clientBuf)
}

// SubscribeWithBuffer registers a new subscriber. After Run has returned the
// channel comes back already closed.
func (h *Hub) SubscribeWithBuffer(size int) chan packet.Packet {
	if size <= 0 {
		size = h.clientBuf
	}
	ch := make(chan packet.Packet, size)
	select {
	case h.register <- ch:
	case <-h.done:
		close(ch)
	}
	return ch
}

// Unsubscribe removes ch and closes it.
func (h *Hub) Unsubscribe(ch chan packet.Packet) {
	select {
	case h.unregister <- ch:
	case <-h.done:
	}
}

// Publish queues pkt for delivery. It never blocks; a full queue drops the
// packet and returns false.
func (h *Hub) Publish(pkt packet.Packet) bool {
	select {
	case h.broadcast <- pkt:
		return true
	default:
		h.drop()
		return false
	}
}

func (h *Hub) drop() {
	if h.onDrop != nil {
		h.onDrop()
	}
}
