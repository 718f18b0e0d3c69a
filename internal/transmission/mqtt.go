package transmission

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// State topics are published fire-and-forget and retained, so a late
// subscriber immediately receives the last known state.
const (
	StateQoS      byte = 0
	StateRetained      = true
)

// Publisher is the part of the MQTT client the transmitter needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTTransmitter transmits sensor state via MQTT
type MQTTTransmitter struct {
	client Publisher
	logger *logrus.Logger
}

// NewMQTTTransmitter creates a new MQTT transmitter
func NewMQTTTransmitter(client Publisher, logger *logrus.Logger) *MQTTTransmitter {
	return &MQTTTransmitter{
		client: client,
		logger: logger,
	}
}

// Transmit publishes payload to topic with the state delivery settings.
func (t *MQTTTransmitter) Transmit(topic string, payload []byte) error {
	if err := t.client.Publish(topic, payload, StateQoS, StateRetained); err != nil {
		return fmt.Errorf("MQTT transmit to %s failed: %w", topic, err)
	}

	t.logger.WithFields(logrus.Fields{
		"topic": topic,
		"size":  len(payload),
	}).Debug("Transmitted sensor state")
	return nil
}
