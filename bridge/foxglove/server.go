// Package foxglove streams decoded X-Plane messages to Foxglove Studio over
// the foxglove.websocket.v1 protocol.
package foxglove

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"xplanemap/logging"
	"xplanemap/metrics"
	"xplanemap/packet"
)

// Source hands out packet subscriptions. *hub.Hub satisfies it.
type Source interface {
	Subscribe() chan packet.Packet
	Unsubscribe(chan packet.Packet)
}

type Server struct {
	cfg       Config
	source    Source
	logger    *slog.Logger
	metrics   *metrics.Metrics
	sessionID string
	clients   map[*client]struct{}
	mu        sync.RWMutex
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	subs map[uint32]uint64
	mu   sync.RWMutex
	once sync.Once
}

func NewServer(cfg Config, source Source, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg.withDefaults(),
		source:    source,
		logger:    logging.Discard(),
		sessionID: uuid.NewString(),
		clients:   make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.Component("foxglove"))
	return s
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("cannot start foxglove bridge: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts websocket clients on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sub := s.source.Subscribe()
	go s.broadcastLoop(ctx, sub)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()
	s.logger.Info("Foxglove bridge started", slog.String("address", ln.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		s.closeClients()
		s.source.Unsubscribe(sub)
		return nil
	case err := <-errCh:
		s.closeClients()
		s.source.Unsubscribe(sub)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", logging.Error(err))
		return
	}

	c := newClient(conn, s.cfg.SendBuf)
	s.addClient(c)
	s.logger.Info("Client connected", slog.String("remote", r.RemoteAddr))
	defer func() {
		c.close()
		s.removeClient(c)
		s.logger.Info("Client disconnected", slog.String("remote", r.RemoteAddr))
	}()

	if err := conn.WriteJSON(s.serverInfo()); err != nil {
		return
	}
	if err := conn.WriteJSON(s.advertise()); err != nil {
		return
	}

	go c.writeLoop()
	c.readLoop(map[uint64]struct{}{
		LocationChannelID: {},
		RawChannelID:      {},
	})
}

func (s *Server) serverInfo() ServerInfoMsg {
	return ServerInfoMsg{
		Op:                 OpServerInfo,
		Name:               s.cfg.Name,
		Capabilities:       []string{},
		SupportedEncodings: []string{},
		SessionID:          s.sessionID,
	}
}

func (s *Server) advertise() AdvertiseMsg {
	return AdvertiseMsg{
		Op: OpAdvertise,
		Channels: []Channel{
			{
				ID:             LocationChannelID,
				Topic:          s.cfg.Topic,
				Encoding:       "json",
				SchemaName:     "foxglove.LocationFix",
				SchemaEncoding: "jsonschema",
				Schema:         locationFixSchema,
			},
			{
				ID:             RawChannelID,
				Topic:          s.cfg.RawTopic,
				Encoding:       "json",
				SchemaName:     "xplanemap.Message",
				SchemaEncoding: "jsonschema",
				Schema:         rawSchema,
			},
		},
	}
}

func (s *Server) broadcastLoop(ctx context.Context, sub <-chan packet.Packet) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-sub:
			if !ok {
				return
			}
			s.publish(pkt)
		}
	}
}

func (s *Server) publish(pkt packet.Packet) {
	ts := pkt.Received
	if ts.IsZero() {
		ts = time.Now()
	}

	if fix, ok := s.locationFix(pkt, ts); ok {
		s.publishJSONToChannel(LocationChannelID, ts, fix)
	}
	if pkt.Message != nil {
		s.publishJSONToChannel(RawChannelID, ts, RawMessage{
			TS:     ts.UTC().Format(time.RFC3339Nano),
			Sender: pkt.Sender,
			Mode:   packet.Mode(pkt.Sender),
			Type:   pkt.Message.Type(),
			Data:   pkt.Message,
		})
	}
}

func (s *Server) locationFix(pkt packet.Packet, ts time.Time) (LocationFix, bool) {
	fix, ok := pkt.GPSFix()
	if !ok {
		return LocationFix{}, false
	}
	return LocationFix{
		Timestamp:              Time{Sec: uint32(ts.Unix()), Nsec: uint32(ts.Nanosecond())},
		FrameID:                s.cfg.FrameID,
		Latitude:               fix.Latitude,
		Longitude:              fix.Longitude,
		Altitude:               fix.Altitude,
		PositionCovarianceType: CovarianceUnknown,
	}, true
}

func (s *Server) publishJSONToChannel(channelID uint64, ts time.Time, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.Debug("Cannot encode message", slog.Uint64("channel", channelID), logging.Error(err))
		return
	}

	logTime := uint64(ts.UnixNano())
	for _, c := range s.snapshotClients() {
		for _, subID := range c.subIDsForChannel(channelID) {
			c.trySend(EncodeMessageData(subID, logTime, payload))
		}
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.metrics.ClientConnected(1)
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		s.metrics.ClientConnected(-1)
	}
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

// closeClients drops hijacked connections, which http.Server.Shutdown leaves open.
func (s *Server) closeClients() {
	for _, c := range s.snapshotClients() {
		c.close()
	}
}

func newClient(conn *websocket.Conn, sendBuf int) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuf),
		subs: make(map[uint32]uint64),
	}
}

func (c *client) readLoop(supportedChannels map[uint64]struct{}) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var header struct {
			Op string `json:"op"`
		}
		if err := json.Unmarshal(data, &header); err != nil {
			continue
		}

		switch header.Op {
		case OpSubscribe:
			var msg SubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, sub := range msg.Subscriptions {
				if _, ok := supportedChannels[sub.ChannelID]; ok {
					c.addSub(sub.ID, sub.ChannelID)
				}
			}
		case OpUnsubscribe:
			var msg UnsubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, id := range msg.SubscriptionIDs {
				c.removeSub(id)
			}
		}
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

// trySend drops msg when the client is behind. The recover covers a send
// racing with close.
func (c *client) trySend(msg []byte) {
	defer func() {
		_ = recover()
	}()
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) addSub(id uint32, channelID uint64) {
	c.mu.Lock()
	c.subs[id] = channelID
	c.mu.Unlock()
}

func (c *client) removeSub(id uint32) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *client) subIDsForChannel(channelID uint64) []uint32 {
	c.mu.RLock()
	ids := make([]uint32, 0, len(c.subs))
	for id, ch := range c.subs {
		if ch == channelID {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	return ids
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
