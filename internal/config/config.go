package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Config holds all configuration options for the trailer panel
type Config struct {
	// MQTT Configuration
	MQTTUrl         string        `json:"mqtt_url"`         // MQTT URL (supports both WebSocket and standard MQTT)
	ClientPrefix    string        `json:"client_prefix"`    // Client ID prefix; a random suffix is added per session
	KeepAlive       time.Duration `json:"keepalive"`        // Keepalive interval
	ReconnectPeriod time.Duration `json:"reconnect_period"` // Delay between reconnect attempts
	ConnectTimeout  time.Duration `json:"connect_timeout"`  // Time allowed for a connection attempt
	QueueQoSZero    bool          `json:"queue_qos0"`       // Queue QoS 0 publishes while offline
	TLSInsecure     bool          `json:"tls_insecure"`     // Skip certificate verification for mqtts:// and wss://

	// HTTP Configuration
	ListenAddr string `json:"listen_addr"` // Panel API listen address

	// Application Configuration
	Verbose bool `json:"verbose"` // Enable verbose logging
}

// GetDefaultConfig returns a configuration with sensible defaults
func GetDefaultConfig() *Config {
	return &Config{
		MQTTUrl:         DefaultMQTTURL,
		ClientPrefix:    DefaultClientPrefix,
		KeepAlive:       DefaultKeepAlive,
		ReconnectPeriod: DefaultReconnectPeriod,
		ConnectTimeout:  DefaultConnectTimeout,
		QueueQoSZero:    false,
		ListenAddr:      DefaultListenAddr,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.MQTTUrl == "" {
		return fmt.Errorf("MQTT URL is required")
	}

	// support both WebSocket and standard MQTT protocols
	if !strings.HasPrefix(c.MQTTUrl, "ws://") &&
		!strings.HasPrefix(c.MQTTUrl, "wss://") &&
		!strings.HasPrefix(c.MQTTUrl, "mqtt://") &&
		!strings.HasPrefix(c.MQTTUrl, "mqtts://") {
		return fmt.Errorf("MQTT URL must use supported protocol (ws://, wss://, mqtt://, or mqtts://)")
	}

	if c.ClientPrefix == "" {
		return fmt.Errorf("client ID prefix is required")
	}

	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.ListenAddr, err)
	}

	// Set defaults for invalid values
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ReconnectPeriod <= 0 {
		c.ReconnectPeriod = DefaultReconnectPeriod
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}

	return nil
}

// IsSecure returns true if the broker URL requires TLS
func (c *Config) IsSecure() bool {
	return strings.HasPrefix(c.MQTTUrl, "mqtts://") || strings.HasPrefix(c.MQTTUrl, "wss://")
}

// ParseDuration accepts either a Go duration ("60s", "1m30s") or a bare
// number of seconds ("60"). Negative values are rejected.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return d, nil
	}
	var secs int
	if _, err := fmt.Sscanf(s, "%d", &secs); err != nil || fmt.Sprint(secs) != s {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if secs < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return time.Duration(secs) * time.Second, nil
}
