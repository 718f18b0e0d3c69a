package transmission

// Transmitter delivers a sensor state payload to its topic.
type Transmitter interface {
	Transmit(topic string, payload []byte) error
}
