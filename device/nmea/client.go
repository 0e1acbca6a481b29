package nmea

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"xplanemap/config"
	"xplanemap/logging"
	"xplanemap/packet"
)

// Client writes sentences to an open NMEA device
type Client struct {
	conn   io.WriteCloser // The underlying connection (TCP or serial)
	talker string
	logger *slog.Logger
}

// Connect opens the device named in conf. A device containing ":" is dialed
// over TCP; anything else is opened as a serial port.
func Connect(conf config.NMEAConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With(logging.Component("nmea"))

	if strings.Contains(conf.Device, ":") {
		logger.Info("Connecting to NMEA listener via TCP", slog.String("address", conf.Device))
		tcpConn, err := connectTCP(conf.Device)
		if err != nil {
			return nil, err
		}
		return NewClient(tcpConn, conf.Talker, logger), nil
	}

	logger.Info("Opening NMEA serial port", slog.String("device", conf.Device), slog.Int("baud", conf.BaudRate))
	serialConn, err := connectSerial(conf.Device, conf.BaudRate)
	if err != nil {
		return nil, err
	}
	return NewClient(serialConn, conf.Talker, logger), nil
}

// NewClient wraps an already open connection.
func NewClient(conn io.WriteCloser, talker string, logger *slog.Logger) *Client {
	if talker == "" {
		talker = "GP"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{conn: conn, talker: talker, logger: logger}
}

// Send writes the RMC and GGA sentences for one packet. Packets that are not
// GPS fixes are ignored.
func (c *Client) Send(pkt packet.Packet) error {
	fix, ok := pkt.GPSFix()
	if !ok {
		return nil
	}
	if _, err := io.WriteString(c.conn, RMC(c.talker, fix)+GGA(c.talker, fix)); err != nil {
		return fmt.Errorf("failed to write NMEA sentence: %w", err)
	}
	return nil
}

// Consume relays every fix from in until ctx is done, in is closed or the
// device fails.
func (c *Client) Consume(ctx context.Context, in <-chan packet.Packet) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt, ok := <-in:
			if !ok {
				return nil
			}
			if err := c.Send(pkt); err != nil {
				c.logger.Error("NMEA relay stopped", logging.Error(err))
				return err
			}
		}
	}
}

// Close disconnects the client
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
