package main

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags(nil)
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8883", cfg.MQTTUrl)
	assert.Equal(t, "trailer-panel", cfg.ClientPrefix)
	assert.Equal(t, 60*time.Second, cfg.KeepAlive)
	assert.Equal(t, time.Second, cfg.ReconnectPeriod)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.False(t, cfg.QueueQoSZero)
}

func TestParseFlagsOverrides(t *testing.T) {
	cfg, err := parseFlags([]string{
		"-mqtt-url", "mqtt://broker:1883",
		"-keepalive", "30",
		"-reconnect-period", "250ms",
		"-listen", "127.0.0.1:9000",
		"-verbose",
	})
	require.NoError(t, err)

	assert.Equal(t, "mqtt://broker:1883", cfg.MQTTUrl)
	assert.Equal(t, 30*time.Second, cfg.KeepAlive)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectPeriod)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.True(t, cfg.Verbose)
}

func TestParseFlagsFromEnv(t *testing.T) {
	t.Setenv("TRAILER_PANEL_MQTT_URL", "wss://broker/mqtt")
	t.Setenv("TRAILER_PANEL_TLS_INSECURE", "true")

	cfg, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "wss://broker/mqtt", cfg.MQTTUrl)
	assert.True(t, cfg.TLSInsecure)
}

func TestParseFlagsInvalid(t *testing.T) {
	_, err := parseFlags([]string{"-mqtt-url", "http://broker"})
	assert.Error(t, err)

	_, err = parseFlags([]string{"-connect-timeout", "soon"})
	assert.Error(t, err)
}

func TestSetupLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, setupLogger(true).GetLevel())
	assert.Equal(t, logrus.InfoLevel, setupLogger(false).GetLevel())
}
