// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/bridge"
	"github.com/Thermoquad/dxbridge/pkg/config"
	"github.com/Thermoquad/dxbridge/pkg/link"
	"github.com/Thermoquad/dxbridge/pkg/logging"
	"github.com/Thermoquad/dxbridge/pkg/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge between a host link and the servo bus",
	Long: `Run the servo bus bridge.

Packets from the host addressed to a device are forwarded to the bus
unchanged and the device replies are relayed back byte for byte. Packets
addressed to the bridge itself (id 253) are handled locally; SYNC_READ
queries each listed servo in turn and answers with one timestamped reply
carrying every position, or an instruction error if any servo failed.

The host side is either a serial port (--host-port) or a WebSocket
endpoint (--listen). Settings come from dxbridge.yaml, DXBRIDGE_* environment
variables and the flags below, in increasing order of precedence.

Examples:
  dxbridge serve --bus /dev/ttyAMA0 --host-port /dev/ttyGS0
  dxbridge serve --bus /dev/ttyUSB0 --listen :8080 --metrics
  dxbridge serve --config /etc/dxbridge/dxbridge.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Configuration file (default ./dxbridge.yaml or /etc/dxbridge/dxbridge.yaml)")
	f.String("bus", "", "Servo bus serial port")
	f.Int("bus-baud", 1000000, "Servo bus baud rate")
	f.String("direction", "rts", "Transceiver direction line (rts, dtr, none)")
	f.Bool("invert-direction", false, "Drive the direction line low to transmit")
	f.Duration("bus-timeout", 0, "Device reply timeout (0 derives it from the bus baud)")
	f.String("host-port", "", "Host serial port")
	f.Int("host-baud", 1000000, "Host serial baud rate")
	f.String("listen", "", "Serve the host link as a WebSocket on this address")
	f.String("path", "/bridge", "WebSocket endpoint path")
	f.Int("max-targets", 10, "Maximum servos per SYNC_READ (1-10)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.Bool("metrics", false, "Serve Prometheus metrics")
	f.String("metrics-addr", ":9108", "Metrics listen address")
}

// serveFlagKeys maps configuration keys to serve flags
func serveFlagKeys(f *pflag.FlagSet) map[string]*pflag.Flag {
	keys := map[string]string{
		"bus.port":             "bus",
		"bus.baud":             "bus-baud",
		"bus.direction":        "direction",
		"bus.invert_direction": "invert-direction",
		"bus.timeout":          "bus-timeout",
		"host.port":            "host-port",
		"host.baud":            "host-baud",
		"host.listen":          "listen",
		"host.path":            "path",
		"bridge.max_targets":   "max-targets",
		"logging.level":        "log-level",
		"metrics.enable":       "metrics",
		"metrics.addr":         "metrics-addr",
	}

	flags := make(map[string]*pflag.Flag, len(keys))
	for key, name := range keys {
		flags[key] = f.Lookup(name)
	}
	return flags
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, serveFlagKeys(cmd.Flags()))
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	direction, err := link.ParseDirection(cfg.Bus.Direction)
	if err != nil {
		return err
	}
	bus, err := link.OpenSerial(cfg.Bus.Port, cfg.Bus.Baud,
		link.WithDirection(direction),
		link.WithInvertedDirection(cfg.Bus.InvertDirection))
	if err != nil {
		return err
	}
	defer bus.Close()

	host, shutdownHost, err := openHostLink(cfg, logger)
	if err != nil {
		return err
	}
	defer shutdownHost()

	opts := []bridge.Option{
		bridge.WithBusBaud(cfg.Bus.Baud),
		bridge.WithMaxTargets(cfg.Bridge.MaxTargets),
		bridge.WithPositionRegister(uint8(cfg.Bridge.PositionRegister)),
		bridge.WithIdleInterval(cfg.Bridge.IdleInterval),
		bridge.WithLogger(logger),
	}
	if cfg.Bus.Timeout > 0 {
		opts = append(opts, bridge.WithBusTimeout(cfg.Bus.Timeout))
	}
	b := bridge.New(host, bus, link.NewSystemClock(), opts...)

	if cfg.Metrics.Enable {
		srv := startMetricsServer(cfg.Metrics, b, logger)
		defer shutdownServer(srv)
	}

	logger.Info("serving",
		zap.String("bus", cfg.Bus.Port),
		zap.Int("bus_baud", cfg.Bus.Baud),
		zap.String("direction", direction.String()))

	err = b.Run(ctx)

	fmt.Println()
	fmt.Println(b.Statistics().Snapshot().String())

	if errors.Is(err, bridge.ErrLinkClosed) {
		if busErr := bus.Err(); busErr != nil {
			return fmt.Errorf("bus link: %w", busErr)
		}
	}
	return err
}

// openHostLink opens the serial host port or starts the WebSocket endpoint
func openHostLink(cfg *config.Config, logger *zap.Logger) (bridge.HostLink, func(), error) {
	if cfg.Host.Port != "" {
		host, err := link.OpenSerial(cfg.Host.Port, cfg.Host.Baud, link.WithDirection(link.DirectionNone))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("host link", zap.String("port", cfg.Host.Port), zap.Int("baud", cfg.Host.Baud))
		return host, func() { host.Close() }, nil
	}

	wsOpts := []link.WebSocketOption{link.WithWebSocketLogger(logger)}
	if cfg.Host.Username != "" {
		wsOpts = append(wsOpts, link.WithBasicAuth(cfg.Host.Username, cfg.Host.Password))
	}
	host := link.NewWebSocketHost(wsOpts...)

	mux := http.NewServeMux()
	mux.Handle(cfg.Host.Path, host)
	srv := &http.Server{
		Addr:              cfg.Host.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("websocket server", zap.Error(err))
			host.Close()
		}
	}()
	logger.Info("host link", zap.String("listen", cfg.Host.Listen), zap.String("path", cfg.Host.Path))

	return host, func() {
		host.Close()
		shutdownServer(srv)
	}, nil
}

func startMetricsServer(cfg config.MetricsConfig, b *bridge.Bridge, logger *zap.Logger) *http.Server {
	reg := metrics.NewRegistry()
	reg.MustRegister(metrics.NewCollector(b.Statistics()))

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, metrics.Handler(reg))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("metrics", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))
	return srv
}

func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
