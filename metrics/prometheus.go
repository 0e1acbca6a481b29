// Package metrics exposes Prometheus counters for the telemetry pipeline.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xplanemap/logging"
)

// Drop reasons used as the "reason" label.
const (
	ReasonShortHeader  = "short_header"
	ReasonUnknownType  = "unknown_type"
	ReasonFieldCount   = "field_count"
	ReasonInvalidField = "invalid_field"
	ReasonNoMessage    = "no_message"
	ReasonTypeMismatch = "type_mismatch"
	ReasonPanic        = "panic"
	ReasonOther        = "other"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	DatagramsReceived prometheus.Counter
	BytesReceived     prometheus.Counter
	MessagesDecoded   *prometheus.CounterVec
	DatagramsDropped  *prometheus.CounterVec
	HubDropped        prometheus.Counter
	FoxgloveClients   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DatagramsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "xplanemap_datagrams_received_total",
			Help: "Total number of UDP datagrams read from the broadcast socket",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "xplanemap_bytes_received_total",
			Help: "Total number of payload bytes read from the broadcast socket",
		}),
		MessagesDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xplanemap_messages_decoded_total",
			Help: "Total number of datagrams decoded into messages",
		}, []string{"type"}),
		DatagramsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "xplanemap_datagrams_dropped_total",
			Help: "Total number of datagrams dropped by the decoder",
		}, []string{"reason"}),
		HubDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "xplanemap_hub_dropped_total",
			Help: "Total number of decoded messages dropped because the fan-out queue was full",
		}),
		FoxgloveClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "xplanemap_foxglove_clients",
			Help: "Current number of connected Foxglove websocket clients",
		}),
	}
}

// ObserveDatagram counts one datagram of n bytes.
func (m *Metrics) ObserveDatagram(n int) {
	if m == nil {
		return
	}
	m.DatagramsReceived.Inc()
	m.BytesReceived.Add(float64(n))
}

// Decoded counts one decoded message of the given type code.
func (m *Metrics) Decoded(code string) {
	if m == nil {
		return
	}
	m.MessagesDecoded.WithLabelValues(code).Inc()
}

// Dropped counts one datagram rejected for reason.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.DatagramsDropped.WithLabelValues(reason).Inc()
}

// HubDrop counts one message dropped by the fan-out hub.
func (m *Metrics) HubDrop() {
	if m == nil {
		return
	}
	m.HubDropped.Inc()
}

// ClientConnected adjusts the Foxglove client gauge by delta.
func (m *Metrics) ClientConnected(delta int) {
	if m == nil {
		return
	}
	m.FoxgloveClients.Add(float64(delta))
}

// Serve exposes g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("Metrics endpoint started", slog.String("address", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics endpoint shutdown failed", logging.Error(err))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
