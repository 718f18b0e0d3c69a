package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/jkaberg/trailer-panel/internal/config"
	"github.com/sirupsen/logrus"
)

// ErrNotConnected is returned for QoS 0 publishes while the connection is not
// open and offline queueing is disabled.
var ErrNotConnected = errors.New("mqtt: not connected")

// Events receives transport lifecycle events. *connectivity.Gate satisfies it.
type Events interface {
	OnConnect()
	OnError(message string)
	OnOffline()
	OnReconnecting()
}

// Client wraps the MQTT client with additional functionality
type Client struct {
	client       mqtt.Client
	clientID     string
	broker       string
	queueQoSZero bool
	retryEvery   time.Duration
	connTimeout  time.Duration
	events       Events
	logger       *logrus.Logger

	// eventsMu serializes event delivery. paho runs the lost and connect
	// handlers on separate goroutines, so each one re-reads the connection
	// state under the lock and the last to run reports the current state.
	eventsMu      sync.Mutex
	connectedOnce bool

	stopOnce sync.Once
	stop     chan struct{}
}

// NewClient creates a new MQTT client with support for both WebSocket and standard MQTT protocols.
// It does not connect; call Connect.
func NewClient(cfg *config.Config, events Events, logger *logrus.Logger) (*Client, error) {
	brokerURL, parsedURL, err := BrokerURL(cfg.MQTTUrl)
	if err != nil {
		return nil, err
	}

	clientID := NewClientID(cfg.ClientPrefix)

	// Configure MQTT client options
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetProtocolVersion(config.ProtocolVersion)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetMaxReconnectInterval(cfg.ReconnectPeriod)
	opts.SetConnectRetry(false)

	if cfg.IsSecure() {
		// Certificate verification can be disabled to support self-signed certs
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: cfg.TLSInsecure})
	}

	// Set credentials if provided in URL
	if parsedURL.User != nil {
		username := parsedURL.User.Username()
		password, _ := parsedURL.User.Password()
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	c := &Client{
		clientID:     clientID,
		broker:       cleanURL(cfg.MQTTUrl),
		queueQoSZero: cfg.QueueQoSZero,
		retryEvery:   cfg.ReconnectPeriod,
		connTimeout:  cfg.ConnectTimeout,
		events:       events,
		logger:       logger,
		stop:         make(chan struct{}),
	}

	// Set connection handlers
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(func(client mqtt.Client, _ *mqtt.ClientOptions) {
		c.onReconnecting(client)
	})
	opts.SetOnConnectHandler(c.onConnect)

	c.client = mqtt.NewClient(opts)

	logger.WithFields(logrus.Fields{
		"broker":    c.broker,
		"protocol":  parsedURL.Scheme,
		"client_id": clientID,
	}).Debug("MQTT client created")

	return c, nil
}

// BrokerURL translates a panel broker URL into the form paho dials:
// mqtt:// becomes tcp://, mqtts:// becomes ssl://, ws:// and wss:// are kept.
func BrokerURL(rawURL string) (string, *url.URL, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}

	switch parsedURL.Scheme {
	case "ws", "wss":
		// WebSocket MQTT - use URL as-is
		return rawURL, parsedURL, nil
	case "mqtt":
		// Standard MQTT - convert to tcp://
		return strings.Replace(rawURL, "mqtt://", "tcp://", 1), parsedURL, nil
	case "mqtts":
		// Secure MQTT - convert to ssl://
		return strings.Replace(rawURL, "mqtts://", "ssl://", 1), parsedURL, nil
	default:
		return "", nil, fmt.Errorf("unsupported protocol scheme: %s (supported: ws, wss, mqtt, mqtts)", parsedURL.Scheme)
	}
}

// NewClientID returns "<prefix>-<8 hex chars>", unique per session.
func NewClientID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Connect starts connecting in the background and waits for the first
// successful connection, the connect timeout, or ctx, whichever comes first.
// A broker that is down is not fatal: attempts continue every reconnect
// period until one succeeds, after which paho's auto-reconnect takes over.
func (c *Client) Connect(ctx context.Context) error {
	connected := make(chan struct{})
	go c.connectLoop(ctx, connected)

	timer := time.NewTimer(c.connTimeout)
	defer timer.Stop()

	select {
	case <-connected:
		c.logger.WithFields(logrus.Fields{
			"broker":    c.broker,
			"client_id": c.clientID,
		}).Info("MQTT client connected")
		return nil
	case <-timer.C:
		return fmt.Errorf("no connection to %s after %s: %w", c.broker, c.connTimeout, ErrNotConnected)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) connectLoop(ctx context.Context, connected chan<- struct{}) {
	for {
		token := c.client.Connect()
		select {
		case <-token.Done():
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		}
		if token.Error() == nil {
			close(connected)
			return
		}

		err := token.Error()
		c.logger.WithError(err).Warn("Failed to connect to MQTT broker")
		c.emit(func(e Events) { e.OnError(err.Error()) })

		select {
		case <-time.After(c.retryEvery):
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		}
		c.emit(Events.OnReconnecting)
	}
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	c.logger.WithError(err).Warn("MQTT connection lost")
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	if c.events == nil || client.IsConnectionOpen() {
		return
	}
	c.events.OnError(err.Error())
	c.events.OnOffline()
}

func (c *Client) onReconnecting(client mqtt.Client) {
	c.logger.Debug("MQTT reconnecting...")
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	if c.events == nil || client.IsConnectionOpen() {
		return
	}
	c.events.OnReconnecting()
}

func (c *Client) onConnect(client mqtt.Client) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	if c.connectedOnce {
		c.logger.Info("MQTT reconnected")
	} else {
		c.logger.Debug("MQTT connected")
		c.connectedOnce = true
	}
	if c.events == nil || !client.IsConnectionOpen() {
		return
	}
	c.events.OnConnect()
}

// emit delivers an event from the initial connect loop, where the
// connection is never open.
func (c *Client) emit(fn func(Events)) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	if c.events != nil {
		fn(c.events)
	}
}

// Publish publishes a message to the specified topic
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if qos == 0 && !c.queueQoSZero && !c.client.IsConnectionOpen() {
		return fmt.Errorf("publish to topic %s: %w", topic, ErrNotConnected)
	}

	token := c.client.Publish(topic, qos, retained, payload)

	// Avoid potential deadlocks: wait for completion with a timeout instead of indefinitely.
	if !token.WaitTimeout(config.MQTTPublishTimeout) {
		return fmt.Errorf("publish to topic %s timed out after %s", topic, config.MQTTPublishTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	c.logger.WithFields(logrus.Fields{
		"topic":    topic,
		"size":     len(payload),
		"qos":      qos,
		"retained": retained,
	}).Debug("Published MQTT message")

	return nil
}

// Subscribe subscribes to a topic with a message handler
func (c *Client) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	token := c.client.Subscribe(topic, qos, handler)

	// Prevent indefinite blocking on slow or lost connections.
	const subTimeout = 5 * time.Second
	if !token.WaitTimeout(subTimeout) {
		return fmt.Errorf("subscribe to topic %s timed out after %s", topic, subTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	c.logger.WithField("topic", topic).Debug("Subscribed to MQTT topic")
	return nil
}

// IsConnected returns true if the connection to the broker is open
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// ClientID returns the session client identifier
func (c *Client) ClientID() string {
	return c.clientID
}

// Disconnect stops connection attempts and disconnects the client. The event
// sink is told the transport went offline.
func (c *Client) Disconnect(quiesce uint) {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.client.Disconnect(quiesce)
		c.emit(Events.OnOffline)
		c.logger.Debug("MQTT client disconnected")
	})
}

// cleanURL removes credentials from URL for logging
func cleanURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if parsed.User != nil {
		parsed.User = url.UserPassword("***", "***")
	}

	return parsed.String()
}
