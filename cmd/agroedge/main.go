// Command agroedge is the irrigation controller agent.
//
// It samples the attached sensors on a configured interval, publishes
// telemetry over MQTT with an at-least-once durable fallback queue,
// executes valve commands with a hard open-duration cap, and keeps a
// local event log and delivery history.
//
// Usage:
//
//	agroedge -config /etc/agroedge/config.yaml [flags]
//
// Flags:
//
//	-config string     Configuration file path (required)
//	-data-dir string   Override the configured data directory
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-simulate          Use synthetic sensors and a console display
//
// Examples:
//
//	# Run against a real deployment config
//	agroedge -config /etc/agroedge/config.yaml
//
//	# Develop locally against a test broker with synthetic data
//	agroedge -config dev.yaml -data-dir ./data -simulate -log-level debug
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/agrosmart/edge-go/pkg/agent"
	"github.com/agrosmart/edge-go/pkg/log"
	"github.com/agrosmart/edge-go/pkg/metrics"
	"github.com/agrosmart/edge-go/pkg/persistence"
	"github.com/agrosmart/edge-go/pkg/transport"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path (required)")
	dataDir := flag.String("data-dir", "", "Override the configured data directory")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	simulate := flag.Bool("simulate", false, "Use synthetic sensors and a console display")
	flag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		flag.Usage()
		os.Exit(1)
	}

	slogger := newSlogger(*logLevel)

	cfg, err := agent.LoadConfig(*configPath)
	if err != nil {
		slogger.Error("load config", "error", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slogger.Error("create data dir", "error", err)
		os.Exit(1)
	}

	fileLog, err := log.NewFileLogger(cfg.EventLogPath())
	if err != nil {
		slogger.Error("open event log", "error", err)
		os.Exit(1)
	}
	defer fileLog.Close()
	logger := log.NewMultiLogger(fileLog, log.NewSlogAdapter(slogger))

	met := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := met.Serve(cfg.MetricsAddr)
		defer srv.Close()
		slogger.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	tr := transport.NewMQTT(transport.MQTTConfig{
		BrokerURL: cfg.Broker.URL,
		ClientID:  cfg.Broker.ClientID,
		Username:  cfg.Broker.Username,
		Password:  cfg.Broker.Password,
		QoS:       cfg.Broker.QoS,
	})

	deps := agent.Deps{
		Transport: tr,
		Logger:    logger,
		Metrics:   met,
	}
	if *simulate {
		deps.Sensors = newSimSensors()
		deps.Display = consoleDisplay{log: slogger}
		deps.ValveOutput = simOutput{log: slogger}
	} else {
		// Soil calibration bounds live in the same durable store the
		// agent owns; read them once before it opens the store.
		store, err := persistence.OpenStore(cfg.StorePath())
		if err != nil {
			slogger.Error("open store", "error", err)
			os.Exit(1)
		}
		wet := int(store.Uint32(persistence.KeySoilRawWet, 0))
		dry := int(store.Uint32(persistence.KeySoilRawDry, 0))

		deps.Sensors = newHardwareSensors(wet, dry)
		deps.Display = agent.NoopDisplay{}
		deps.ValveOutput = newValveOutput(slogger)
	}

	a, err := agent.New(cfg, deps)
	if err != nil {
		slogger.Error("create agent", "error", err)
		os.Exit(1)
	}

	slogger.Info("agroedge starting",
		"device_id", cfg.DeviceID,
		"fw_version", cfg.FwVersion,
		"boot_id", a.BootID(),
		"broker", cfg.Broker.URL,
		"interval", a.TelemetryInterval(),
		"simulate", *simulate)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		slogger.Error("agent stopped", "error", err)
		os.Exit(1)
	}
	slogger.Info("agroedge stopped")
}

func newSlogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// consoleDisplay renders presentation frames to the structured log.
type consoleDisplay struct {
	log *slog.Logger
}

func (d consoleDisplay) Render(f agent.Frame) {
	if !f.HasSample {
		d.log.Debug("frame", "broker", f.Status.BrokerConnected, "valve", f.Status.ValveOpen)
		return
	}
	d.log.Debug("frame",
		"broker", f.Status.BrokerConnected,
		"valve", f.Status.ValveOpen,
		"seq", f.Sample.Seq,
		"air_temp", f.Sample.Sensors.AirTemp,
		"soil", f.Sample.Sensors.SoilMoisture)
}
