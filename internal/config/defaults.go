package config

import "time"

// Central place for all application-wide timing constants and other defaults.
// Changing a value here immediately affects all components that import
// github.com/jkaberg/trailer-panel/internal/config.

const (
	// Transport
	DefaultMQTTURL         = "ws://localhost:8883"
	DefaultClientPrefix    = "trailer-panel"
	DefaultKeepAlive       = 60 * time.Second
	DefaultReconnectPeriod = 1000 * time.Millisecond
	DefaultConnectTimeout  = 30000 * time.Millisecond
	ProtocolVersion        = 4 // MQTT 3.1.1, fixed

	// Operation time-outs (to avoid blocking goroutines)
	MQTTPublishTimeout = 5 * time.Second
	MQTTQuiesce        = 250 // ms, graceful disconnect

	// HTTP
	DefaultListenAddr   = ":8080"
	HTTPShutdownTimeout = 5 * time.Second
	HTTPReadTimeout     = 10 * time.Second
)
