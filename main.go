package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"xplanemap/bridge/foxglove"
	"xplanemap/config"
	"xplanemap/device/broadcast"
	"xplanemap/device/nmea"
	"xplanemap/hub"
	"xplanemap/logging"
	"xplanemap/metrics"
	"xplanemap/packet"
	"xplanemap/recorder"
	"xplanemap/xplane"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the TOML config file")
	headless := flag.Bool("headless", false, "run without the terminal map and log to stderr")
	flag.Parse()

	if err := run(*configPath, *headless); err != nil {
		fmt.Fprintf(os.Stderr, "xplanemap: %v\n", err)
		os.Exit(1)
	}
}

// newLogger logs to stderr in headless mode. With the terminal map up,
// stderr belongs to the UI, so logs go to the configured file or nowhere.
func newLogger(conf config.LoggingConfig, headless bool) (*slog.Logger, io.Closer, error) {
	if headless {
		return logging.New(os.Stderr, conf.Level, conf.Format), io.NopCloser(nil), nil
	}
	if conf.File == "" {
		return logging.Discard(), io.NopCloser(nil), nil
	}
	f, err := tea.LogToFile(conf.File, "xplanemap")
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open log file %s: %w", conf.File, err)
	}
	return logging.New(f, conf.Level, conf.Format), f, nil
}

func socketOptions(conf config.ListenerConfig) []broadcast.Option {
	return []broadcast.Option{
		broadcast.WithNetwork(conf.Network),
		broadcast.WithReuseAddr(conf.ReuseAddr),
		broadcast.WithReadBuffer(conf.ReadBuffer),
		broadcast.WithStopOnEmpty(conf.StopOnEmpty),
	}
}

func run(configPath string, headless bool) error {
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, logFile, err := newLogger(conf.Logging, headless)
	if err != nil {
		return err
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	h := hub.New(hub.WithDropHandler(m.HubDrop))

	listener, err := xplane.NewListener(func(sender string, msg xplane.Message) {
		h.Publish(packet.Packet{Sender: sender, Message: msg, Received: time.Now()})
	},
		xplane.WithPort(conf.Listener.Port),
		xplane.WithLogger(log),
		xplane.WithMetrics(m),
		xplane.WithSocketOptions(socketOptions(conf.Listener)...),
	)
	if err != nil {
		log.Error("Failed to start listener", logging.Component("xplane"), logging.Error(err))
		return err
	}
	defer listener.Close()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		h.Run(ctx)
		return nil
	})

	eg.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-listener.Done():
		}
		if err := listener.Err(); err != nil && !errors.Is(err, broadcast.ErrEmptyDatagram) {
			return fmt.Errorf("X-Plane listener stopped: %w", err)
		}
		cancel()
		return nil
	})

	if conf.Metrics.Enabled {
		eg.Go(func() error {
			return metrics.Serve(ctx, conf.Metrics.Addr, reg, log.With(logging.Component("metrics")))
		})
	}

	if conf.Foxglove.Enabled {
		srv := foxglove.NewServer(foxglove.Config{
			Addr:    conf.Foxglove.Addr,
			Name:    conf.Foxglove.Name,
			Topic:   conf.Foxglove.Topic,
			FrameID: conf.Foxglove.FrameID,
		}, h, foxglove.WithLogger(log), foxglove.WithMetrics(m))
		eg.Go(func() error {
			return srv.Run(ctx)
		})
	}

	if conf.Recorder.Enabled {
		f, err := recorder.OpenFile(conf.Recorder.Path)
		if err != nil {
			cancel()
			_ = eg.Wait()
			return err
		}
		defer f.Close()
		w := recorder.NewJSONLWriter(f, log)
		sub := h.Subscribe()
		eg.Go(func() error {
			w.Consume(ctx, sub)
			return nil
		})
	}

	if conf.NMEA.Enabled {
		client, err := nmea.Connect(conf.NMEA, log)
		if err != nil {
			cancel()
			_ = eg.Wait()
			return err
		}
		defer client.Close()
		sub := h.Subscribe()
		eg.Go(func() error {
			return client.Consume(ctx, sub)
		})
	}

	if headless {
		sub := h.Subscribe()
		eg.Go(func() error {
			logFixes(ctx, sub, log)
			return nil
		})
	} else {
		model, err := newModel(conf, listener.Addr().String(), h.Subscribe(), log)
		if err != nil {
			cancel()
			_ = eg.Wait()
			return err
		}
		eg.Go(func() error {
			defer cancel()
			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("terminal UI failed: %w", err)
			}
			return nil
		})
	}

	log.Info("Listening for X-Plane", slog.String("address", listener.Addr().String()))

	if err := eg.Wait(); err != nil {
		log.Error("Stopped with error", logging.Error(err))
		return err
	}
	log.Info("Application stopped")
	return nil
}

// logFixes is the headless stand-in for the map.
func logFixes(ctx context.Context, in <-chan packet.Packet, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-in:
			if !ok {
				return
			}
			fix, ok := pkt.GPSFix()
			if !ok {
				log.Info("Message received", slog.String("type", pkt.Message.Type()), slog.String("from", packet.Mode(pkt.Sender)))
				continue
			}
			log.Info("GPS fix",
				slog.Float64("lat", fix.Latitude),
				slog.Float64("lon", fix.Longitude),
				slog.Float64("alt", fix.Altitude),
				slog.Float64("course", fix.Course),
				slog.Float64("speed", fix.Speed),
				slog.String("from", packet.Mode(pkt.Sender)),
			)
		}
	}
}
