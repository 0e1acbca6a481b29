package foxglove

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xplanemap/hub"
	"xplanemap/metrics"
	"xplanemap/packet"
	"xplanemap/xplane"
)

func testPacket() packet.Packet {
	return packet.Packet{
		Sender: "2",
		Message: xplane.GPSFix{
			Longitude: -122.4,
			Latitude:  37.8,
			Altitude:  30.5,
			Course:    90,
			Speed:     12.3,
		},
		Received: time.Unix(1700000000, 500),
	}
}

func (s *Server) subscriptionCount(channelID uint64) int {
	n := 0
	for _, c := range s.snapshotClients() {
		n += len(c.subIDsForChannel(channelID))
	}
	return n
}

func TestEncodeMessageData(t *testing.T) {
	frame := EncodeMessageData(7, 42, []byte("{}"))
	require.Len(t, frame, 15)
	assert.Equal(t, byte(BinaryOpMessageData), frame[0])
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(frame[1:5]))
	assert.Equal(t, uint64(42), binary.LittleEndian.Uint64(frame[5:13]))
	assert.Equal(t, "{}", string(frame[13:]))
}

func TestAdvertiseChannels(t *testing.T) {
	srv := NewServer(Config{Topic: "/gps"}, nil)
	msg := srv.advertise()

	require.Len(t, msg.Channels, 2)
	assert.Equal(t, LocationChannelID, msg.Channels[0].ID)
	assert.Equal(t, "/gps", msg.Channels[0].Topic)
	assert.Equal(t, "foxglove.LocationFix", msg.Channels[0].SchemaName)
	assert.Equal(t, RawChannelID, msg.Channels[1].ID)
	assert.Equal(t, DefaultConfig().RawTopic, msg.Channels[1].Topic)
}

func TestLocationFixFromPacket(t *testing.T) {
	srv := NewServer(DefaultConfig(), nil)
	pkt := testPacket()

	fix, ok := srv.locationFix(pkt, pkt.Received)
	require.True(t, ok)
	assert.Equal(t, 37.8, fix.Latitude)
	assert.Equal(t, -122.4, fix.Longitude)
	assert.Equal(t, 30.5, fix.Altitude)
	assert.Equal(t, "xplane", fix.FrameID)
	assert.Equal(t, uint32(1700000000), fix.Timestamp.Sec)
	assert.Equal(t, uint32(500), fix.Timestamp.Nsec)

	_, ok = srv.locationFix(packet.Packet{}, time.Now())
	assert.False(t, ok)
}

func dial(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: []string{Subprotocol}}
	conn, resp, err := dialer.Dial("ws://"+addr+"/", nil)
	require.NoError(t, err)
	require.Equal(t, Subprotocol, resp.Header.Get("Sec-WebSocket-Protocol"))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServerStreamsSubscribedChannels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.New()
	go h.Run(ctx)

	m := metrics.New(prometheus.NewRegistry())
	srv := NewServer(DefaultConfig(), h, WithMetrics(m))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	conn := dial(t, ln.Addr().String())

	var info ServerInfoMsg
	require.NoError(t, conn.ReadJSON(&info))
	assert.Equal(t, OpServerInfo, info.Op)
	assert.Equal(t, "xplanemap", info.Name)
	assert.NotEmpty(t, info.SessionID)

	var adv AdvertiseMsg
	require.NoError(t, conn.ReadJSON(&adv))
	assert.Equal(t, OpAdvertise, adv.Op)
	require.Len(t, adv.Channels, 2)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.FoxgloveClients) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(SubscribeMsg{
		Op:            OpSubscribe,
		Subscriptions: []Subscription{{ID: 7, ChannelID: LocationChannelID}, {ID: 9, ChannelID: 99}},
	}))
	require.Eventually(t, func() bool {
		return srv.subscriptionCount(LocationChannelID) == 1
	}, time.Second, 10*time.Millisecond)

	require.True(t, h.Publish(testPacket()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	require.Greater(t, len(frame), 13)
	assert.Equal(t, byte(BinaryOpMessageData), frame[0])
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(frame[1:5]))
	assert.Equal(t, uint64(time.Unix(1700000000, 500).UnixNano()), binary.LittleEndian.Uint64(frame[5:13]))

	var fix LocationFix
	require.NoError(t, json.Unmarshal(frame[13:], &fix))
	assert.Equal(t, 37.8, fix.Latitude)
	assert.Equal(t, -122.4, fix.Longitude)

	require.NoError(t, conn.WriteJSON(UnsubscribeMsg{Op: OpUnsubscribe, SubscriptionIDs: []uint32{7}}))
	require.Eventually(t, func() bool {
		return srv.subscriptionCount(LocationChannelID) == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.FoxgloveClients) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestServerRawChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.New()
	go h.Run(ctx)
	srv := NewServer(DefaultConfig(), h)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ctx, ln)

	conn := dial(t, ln.Addr().String())
	var skip json.RawMessage
	require.NoError(t, conn.ReadJSON(&skip))
	require.NoError(t, conn.ReadJSON(&skip))

	require.NoError(t, conn.WriteJSON(SubscribeMsg{
		Op:            OpSubscribe,
		Subscriptions: []Subscription{{ID: 3, ChannelID: RawChannelID}},
	}))
	require.Eventually(t, func() bool {
		return srv.subscriptionCount(RawChannelID) == 1
	}, time.Second, 10*time.Millisecond)

	require.True(t, h.Publish(testPacket()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(frame[1:5]))

	var raw struct {
		Sender string        `json:"sender"`
		Mode   string        `json:"mode"`
		Type   string        `json:"type"`
		Data   xplane.GPSFix `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame[13:], &raw))
	assert.Equal(t, "2", raw.Sender)
	assert.Equal(t, "X-Plane broadcast mode", raw.Mode)
	assert.Equal(t, xplane.TypeGPS, raw.Type)
	assert.Equal(t, 12.3, raw.Data.Speed)
}

func TestRunBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	h := hub.New()
	srv := NewServer(Config{Addr: ln.Addr().String()}, h)
	err = srv.Run(context.Background())
	assert.ErrorContains(t, err, "cannot start foxglove bridge")
}
