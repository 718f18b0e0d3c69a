package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jkaberg/trailer-panel/internal/app"
	"github.com/jkaberg/trailer-panel/internal/bus"
	"github.com/jkaberg/trailer-panel/internal/config"
	"github.com/jkaberg/trailer-panel/internal/connectivity"
	"github.com/jkaberg/trailer-panel/internal/mqtt"
	"github.com/jkaberg/trailer-panel/internal/panel"
	"github.com/jkaberg/trailer-panel/internal/transmission"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// version is injected at build time via ldflags
var version = "dev"

func main() {
	// A missing .env is fine; values then come from flags and the environment.
	_ = godotenv.Load()

	cfg, err := parseFlags(os.Args[1:])
	logger := setupLogger(cfg.Verbose)
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	logger.WithFields(logrus.Fields{
		"version":   version,
		"listen":    cfg.ListenAddr,
		"reconnect": cfg.ReconnectPeriod,
	}).Info("Starting trailer panel")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Transport ------------------------------------------------------------------
	gate := connectivity.NewGate(logger)
	mqttClient, err := mqtt.NewClient(cfg, gate, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MQTT client")
	}
	defer mqttClient.Disconnect(config.MQTTQuiesce)

	if err := mqttClient.Connect(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.WithError(err).WithField("client_id", mqttClient.ClientID()).
			Warn("MQTT broker not reachable yet; sensors publish once connected")
	}

	// Panel ----------------------------------------------------------------------
	tx := transmission.NewMQTTTransmitter(mqttClient, logger)
	p := panel.New(gate, tx, bus.New(), logger)
	defer p.Close()

	// Run application ------------------------------------------------------------
	if err := app.Run(ctx, cfg, p, version, logger); err != nil {
		logger.WithError(err).Error("Panel stopped with error")
	}
	logger.Info("Trailer panel stopped")
}

// -----------------------------------------------------------------------------
// Helpers & Flags
// -----------------------------------------------------------------------------

func parseFlags(args []string) (*config.Config, error) {
	cfg := config.GetDefaultConfig()
	fs := flag.NewFlagSet("trailer-panel", flag.ExitOnError)

	showVersion := fs.Bool("version", false, "Show version and exit")

	fs.StringVar(&cfg.MQTTUrl, "mqtt-url", getEnv("TRAILER_PANEL_MQTT_URL", cfg.MQTTUrl), "MQTT broker URL (ws://, wss://, mqtt://, mqtts://)")
	fs.StringVar(&cfg.ClientPrefix, "client-prefix", getEnv("TRAILER_PANEL_CLIENT_PREFIX", cfg.ClientPrefix), "MQTT client ID prefix")
	fs.StringVar(&cfg.ListenAddr, "listen", getEnv("TRAILER_PANEL_LISTEN", cfg.ListenAddr), "Panel API listen address")
	fs.BoolVar(&cfg.QueueQoSZero, "queue-qos0", getEnvBool("TRAILER_PANEL_QUEUE_QOS0", cfg.QueueQoSZero), "Queue QoS 0 publishes while offline")
	fs.BoolVar(&cfg.TLSInsecure, "tls-insecure", getEnvBool("TRAILER_PANEL_TLS_INSECURE", cfg.TLSInsecure), "Skip TLS certificate verification")
	fs.BoolVar(&cfg.Verbose, "verbose", getEnvBool("TRAILER_PANEL_VERBOSE", false), "Verbose logging")

	keepAliveStr := fs.String("keepalive", getEnv("TRAILER_PANEL_KEEPALIVE", ""), "MQTT keepalive (e.g. 60s)")
	reconnectStr := fs.String("reconnect-period", getEnv("TRAILER_PANEL_RECONNECT_PERIOD", ""), "Delay between reconnect attempts (e.g. 1s)")
	connectTimeoutStr := fs.String("connect-timeout", getEnv("TRAILER_PANEL_CONNECT_TIMEOUT", ""), "Connect timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if *showVersion {
		fmt.Printf("trailer-panel %s\n", version)
		os.Exit(0)
	}

	// Duration overrides
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"keepalive", *keepAliveStr, &cfg.KeepAlive},
		{"reconnect-period", *reconnectStr, &cfg.ReconnectPeriod},
		{"connect-timeout", *connectTimeoutStr, &cfg.ConnectTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := config.ParseDuration(d.raw)
		if err != nil {
			return cfg, fmt.Errorf("-%s: %w", d.name, err)
		}
		*d.dst = v
	}

	return cfg, cfg.Validate()
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return def
}

func setupLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
