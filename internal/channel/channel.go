// Package channel implements the per-sensor state-and-publish engine.
//
// A Channel owns one sensor record. Every accepted mutation replaces the
// record with a copy where one field changed and then makes exactly one
// publish attempt. An attempt is dropped, never queued, when there is no
// transport, the connectivity gate is closed, or a gated sensor is disabled.
package channel

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jkaberg/trailer-panel/internal/connectivity"
	"github.com/jkaberg/trailer-panel/internal/sensors"
	"github.com/jkaberg/trailer-panel/internal/transmission"
	"github.com/sirupsen/logrus"
)

// State of the channel lifecycle.
type State int

const (
	AwaitingFirstPublish State = iota
	Ready
)

func (s State) String() string {
	switch s {
	case AwaitingFirstPublish:
		return "awaiting-first-publish"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// SkipReason explains why a publish attempt was dropped.
type SkipReason string

const (
	SkipNoTransport  SkipReason = "no-transport"
	SkipDisconnected SkipReason = "disconnected"
	SkipDisabled     SkipReason = "disabled"
)

// Result reports the outcome of one publish attempt.
type Result struct {
	Sensor    string
	Topic     string
	Published bool
	Skipped   SkipReason // empty unless the attempt was dropped
	Err       error      // transport failure; the record is kept
	Timestamp time.Time  // payload timestamp when Published, millisecond precision

	// Record is the record the attempt was made for. Not encoded.
	Record sensors.Record
}

// MarshalJSON flattens Err into a string.
func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Sensor    string     `json:"sensor"`
		Topic     string     `json:"topic"`
		Published bool       `json:"published"`
		Skipped   SkipReason `json:"skipped,omitempty"`
		Error     string     `json:"error,omitempty"`
		Timestamp string     `json:"timestamp,omitempty"`
	}{
		Sensor:    r.Sensor,
		Topic:     r.Topic,
		Published: r.Published,
		Skipped:   r.Skipped,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	if !r.Timestamp.IsZero() {
		out.Timestamp = sensors.FormatTimestamp(r.Timestamp)
	}
	return json.Marshal(out)
}

// Update is emitted to observers after the seed attempt and after every
// accepted mutation.
type Update struct {
	Sensor string         `json:"sensor"`
	Record sensors.Record `json:"record"`
	Result Result         `json:"result"`
}

// Option configures a Channel.
type Option func(*Channel)

// WithObserver registers fn to receive every Update. Observers run while the
// channel is locked and must not call back into it.
func WithObserver(fn func(Update)) Option {
	return func(c *Channel) {
		c.observers = append(c.observers, fn)
	}
}

// WithLogger sets the logger used for publish diagnostics.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the source of payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) {
		if now != nil {
			c.now = now
		}
	}
}

// Channel is the state holder and publisher for one simulated sensor.
type Channel struct {
	schema    *sensors.Schema
	gate      connectivity.Reader
	tx        transmission.Transmitter
	observers []func(Update)
	logger    *logrus.Logger
	now       func() time.Time

	mu            sync.Mutex
	record        sensors.Record
	state         State
	lastPublished time.Time
}

// Open builds a channel holding the schema defaults and performs the single
// seeding publish attempt. tx may be nil when no transport exists.
func Open(schema *sensors.Schema, gate connectivity.Reader, tx transmission.Transmitter, opts ...Option) (*Channel, Result) {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &Channel{
		schema: schema,
		gate:   gate,
		tx:     tx,
		logger: discard,
		now:    time.Now,
		record: schema.Defaults(),
		state:  AwaitingFirstPublish,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.publishLocked()
	c.state = Ready
	c.emitLocked(res)
	return c, res
}

// SetField sets one field and attempts a publish. The returned Result carries
// the record produced by this call. Invalid input returns an error without
// touching the record or publishing.
func (c *Channel) SetField(name string, value interface{}) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(name, value)
}

// Toggle flips the switch state and attempts a publish.
func (c *Channel) Toggle() (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.schema.Field("state")
	if !ok || f.Kind != sensors.KindBool {
		return c.result(), fmt.Errorf("%s cannot be toggled: %w", c.schema.Name, sensors.ErrUnknownField)
	}
	return c.setLocked(f.Name, !c.record.Bool(f.Name))
}

func (c *Channel) setLocked(name string, value interface{}) (Result, error) {
	field, v, err := c.schema.Coerce(name, value)
	if err != nil {
		return c.result(), err
	}

	c.record = c.record.With(field, v)
	res := c.publishLocked()
	c.emitLocked(res)
	return res, nil
}

func (c *Channel) result() Result {
	return Result{Sensor: c.schema.Name, Topic: c.schema.Topic, Record: c.record}
}

// publishLocked makes one gated publish attempt of the current record.
func (c *Channel) publishLocked() Result {
	res := c.result()
	log := c.logger.WithFields(logrus.Fields{
		"sensor": c.schema.Name,
		"topic":  c.schema.Topic,
	})

	switch {
	case c.tx == nil:
		res.Skipped = SkipNoTransport
	case c.gate == nil || !c.gate.Connected():
		res.Skipped = SkipDisconnected
	case c.schema.Gated && !c.record.Bool(sensors.EnabledField):
		res.Skipped = SkipDisabled
	}
	if res.Skipped != "" {
		log.WithField("reason", res.Skipped).Debug("Publish skipped")
		return res
	}

	ts := sensors.StampTime(c.now())
	payload, err := sensors.BuildPayload(c.record, ts)
	if err != nil {
		res.Err = err
		log.WithError(err).Warn("Failed to build payload")
		return res
	}
	if err := c.tx.Transmit(c.schema.Topic, payload); err != nil {
		res.Err = err
		log.WithError(err).Warn("Failed to publish sensor state")
		return res
	}

	res.Published = true
	res.Timestamp = ts
	c.lastPublished = ts
	return res
}

func (c *Channel) emitLocked(res Result) {
	u := Update{Sensor: c.schema.Name, Record: c.record, Result: res}
	for _, fn := range c.observers {
		fn(u)
	}
}

// Schema returns the sensor schema.
func (c *Channel) Schema() *sensors.Schema { return c.schema }

// Name returns the sensor name.
func (c *Channel) Name() string { return c.schema.Name }

// Record returns the current record.
func (c *Channel) Record() sensors.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record
}

// State returns the lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastPublished returns the timestamp of the last successful publish.
func (c *Channel) LastPublished() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPublished, !c.lastPublished.IsZero()
}
