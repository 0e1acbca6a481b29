package xplane

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xplanemap/metrics"
)

type logRecord struct {
	level slog.Level
	msg   string
}

// recordHandler keeps every record so tests can assert on decode failures.
type recordHandler struct {
	mu        sync.Mutex
	records   []logRecord
	skipDebug bool
}

func (h *recordHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level != slog.LevelDebug || !h.skipDebug
}

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.records = append(h.records, logRecord{level: r.Level, msg: r.Message})
	h.mu.Unlock()
	return nil
}

func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordHandler) has(level slog.Level, msg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.level == level && r.msg == msg {
			return true
		}
	}
	return false
}

type delivery struct {
	sender string
	msg    Message
}

func startTestListener(t *testing.T, opts ...Option) (*Listener, <-chan delivery, *net.UDPConn) {
	t.Helper()
	ch := make(chan delivery, 16)
	opts = append([]Option{WithPort(0)}, opts...)
	l, err := NewListener(func(sender string, msg Message) {
		ch <- delivery{sender: sender, msg: msg}
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	port := l.Addr().(*net.UDPAddr).Port
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return l, ch, conn
}

func next(t *testing.T, ch <-chan delivery) delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return delivery{}
	}
}

func TestListenerDispatchesGPSFix(t *testing.T) {
	_, ch, conn := startTestListener(t, WithClock(func() time.Time { return fixedNow }))

	_, err := conn.Write([]byte("XGPS2,-122.4,37.8,30.5,90.0,12.3"))
	require.NoError(t, err)

	d := next(t, ch)
	assert.Equal(t, "2", d.sender)
	assert.Equal(t, GPSFix{
		Longitude: -122.4,
		Latitude:  37.8,
		Altitude:  30.5,
		Course:    90.0,
		Speed:     12.3,
		Timestamp: fixedNow,
	}, d.msg)
}

func TestListenerSurvivesBadDatagrams(t *testing.T) {
	logs := &recordHandler{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	_, ch, conn := startTestListener(t, WithLogger(slog.New(logs)), WithMetrics(m))

	for _, payload := range []string{
		"ABCD1,1,2,3",
		"XGP",
		"XGPS2,1,2,3",
		"XGPS2,1,2,x,4,5",
		"XGPS1,10,20,30,40,50",
	} {
		_, err := conn.Write([]byte(payload))
		require.NoError(t, err)
	}

	d := next(t, ch)
	assert.Equal(t, "1", d.sender)
	fix := d.msg.(GPSFix)
	assert.Equal(t, 10.0, fix.Longitude)
	assert.Equal(t, 50.0, fix.Speed)
	assert.Empty(t, ch)

	assert.True(t, logs.has(slog.LevelWarn, "Unhandled message"))
	assert.True(t, logs.has(slog.LevelError, "Cannot parse message"))
	assert.True(t, logs.has(slog.LevelDebug, "Dropping datagram"))

	assert.Equal(t, 5.0, testutil.ToFloat64(m.DatagramsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesDecoded.WithLabelValues(TypeGPS)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatagramsDropped.WithLabelValues(metrics.ReasonUnknownType)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatagramsDropped.WithLabelValues(metrics.ReasonShortHeader)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatagramsDropped.WithLabelValues(metrics.ReasonFieldCount)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatagramsDropped.WithLabelValues(metrics.ReasonInvalidField)))
}

func TestListenerSurvivesMisbehavingParsers(t *testing.T) {
	r := DefaultRegistry()
	require.NoError(t, r.Register("NILM", func([]string, time.Time) (Message, error) {
		return nil, nil
	}))
	require.NoError(t, r.Register("ABCD", func([]string, time.Time) (Message, error) {
		return GPSFix{}, nil
	}))
	require.NoError(t, r.Register("BOOM", func(fields []string, _ time.Time) (Message, error) {
		return attitude{Heading: fields[5]}, nil
	}))

	logs := &recordHandler{}
	m := metrics.New(prometheus.NewRegistry())
	l, ch, conn := startTestListener(t, WithRegistry(r), WithLogger(slog.New(logs)), WithMetrics(m))

	for _, payload := range []string{
		"NILM1,1",
		"ABCD1,1",
		"BOOM1,1",
		"XGPS2,1,2,3,4,5",
	} {
		_, err := conn.Write([]byte(payload))
		require.NoError(t, err)
	}

	d := next(t, ch)
	assert.Equal(t, "2", d.sender)
	assert.Equal(t, TypeGPS, d.msg.Type())
	assert.Empty(t, ch)
	select {
	case <-l.Done():
		t.Fatal("listener stopped")
	default:
	}

	assert.True(t, logs.has(slog.LevelError, "Cannot parse message"))
	assert.True(t, logs.has(slog.LevelError, "Parser returned the wrong message type"))
	assert.True(t, logs.has(slog.LevelError, "Recovered from panic while handling datagram"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatagramsDropped.WithLabelValues(metrics.ReasonNoMessage)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatagramsDropped.WithLabelValues(metrics.ReasonTypeMismatch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DatagramsDropped.WithLabelValues(metrics.ReasonPanic)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesDecoded.WithLabelValues(TypeGPS)))
}

func TestListenerDebugPayloadOnlyWhenEnabled(t *testing.T) {
	for _, skipDebug := range []bool{false, true} {
		logs := &recordHandler{skipDebug: skipDebug}
		_, ch, conn := startTestListener(t, WithLogger(slog.New(logs)))

		_, err := conn.Write([]byte("XGPS2,1,2,3,4,5"))
		require.NoError(t, err)
		next(t, ch)

		assert.Equal(t, !skipDebug, logs.has(slog.LevelDebug, "Receiving datagram"))
	}
}

func TestListenerCustomRegistry(t *testing.T) {
	r := DefaultRegistry()
	require.NoError(t, r.Register("XATT", parseAttitude))
	_, ch, conn := startTestListener(t, WithRegistry(r))

	_, err := conn.Write([]byte("XATT2,180.0"))
	require.NoError(t, err)

	d := next(t, ch)
	assert.Equal(t, "2", d.sender)
	assert.Equal(t, attitude{Heading: "180.0"}, d.msg)
}

func TestListenerCloseTwice(t *testing.T) {
	l, _, _ := startTestListener(t)

	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
	select {
	case <-l.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.NoError(t, l.Err())
}

func TestNewListenerBindFailure(t *testing.T) {
	first, _, _ := startTestListener(t)
	port := first.Addr().(*net.UDPAddr).Port

	l, err := NewListener(func(string, Message) {}, WithPort(port))
	assert.Error(t, err)
	assert.Nil(t, l)
	assert.Contains(t, err.Error(), "cannot initialize X-Plane listener")
}

func TestNewListenerRequiresHandler(t *testing.T) {
	_, err := NewListener(nil, WithPort(0))
	assert.Error(t, err)
}
