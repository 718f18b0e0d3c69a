// Package panel binds the four simulated sensors to one connectivity gate and
// one transport for the lifetime of a session.
package panel

import (
	"errors"
	"fmt"

	"github.com/jkaberg/trailer-panel/internal/bus"
	"github.com/jkaberg/trailer-panel/internal/channel"
	"github.com/jkaberg/trailer-panel/internal/connectivity"
	"github.com/jkaberg/trailer-panel/internal/sensors"
	"github.com/jkaberg/trailer-panel/internal/transmission"
	"github.com/sirupsen/logrus"
)

// ErrUnknownSensor is returned for names outside the panel.
var ErrUnknownSensor = errors.New("unknown sensor")

// Gate is the connectivity view the panel needs: channels read it and the
// bus follows its changes.
type Gate interface {
	connectivity.Reader
	Subscribe(fn func(connectivity.Status)) (unsubscribe func())
}

// Panel is the session's set of sensor channels.
type Panel struct {
	gate     Gate
	bus      *bus.Bus
	channels []*channel.Channel
	byName   map[string]*channel.Channel
	stop     func()
	logger   *logrus.Logger
}

// SensorView is a read-only snapshot of one sensor.
type SensorView struct {
	Name          string         `json:"name"`
	Title         string         `json:"title"`
	Topic         string         `json:"topic"`
	Gated         bool           `json:"gated"`
	State         channel.State  `json:"state"`
	Record        sensors.Record `json:"record"`
	LastPublished string         `json:"last_published,omitempty"`
}

// Snapshot is the whole panel at one point in time.
type Snapshot struct {
	Status  connectivity.Status `json:"status"`
	Sensors []SensorView        `json:"sensors"`
}

// New opens the switch, temperature, water and power channels in that order,
// each seeded once, and forwards gate changes and record updates to b. tx may
// be nil when no transport is configured.
func New(gate Gate, tx transmission.Transmitter, b *bus.Bus, logger *logrus.Logger) *Panel {
	p := &Panel{
		gate:   gate,
		bus:    b,
		byName: make(map[string]*channel.Channel),
		logger: logger,
	}

	opts := []channel.Option{channel.WithLogger(logger)}
	if b != nil {
		opts = append(opts, channel.WithObserver(func(u channel.Update) {
			b.Publish(bus.RecordEvent(u))
		}))
	}

	for _, schema := range sensors.AllSchemas() {
		ch, res := channel.Open(schema, gate, tx, opts...)
		p.channels = append(p.channels, ch)
		p.byName[schema.Name] = ch

		logger.WithFields(logrus.Fields{
			"sensor":    schema.Name,
			"topic":     schema.Topic,
			"published": res.Published,
			"skipped":   res.Skipped,
		}).Debug("Sensor channel opened")
	}

	if b != nil {
		p.stop = gate.Subscribe(func(s connectivity.Status) {
			b.Publish(bus.StatusEvent(s))
		})
	}
	return p
}

// Channel returns the named sensor channel.
func (p *Panel) Channel(name string) (*channel.Channel, bool) {
	ch, ok := p.byName[name]
	return ch, ok
}

// Names returns the sensor names in panel order.
func (p *Panel) Names() []string {
	names := make([]string, len(p.channels))
	for i, ch := range p.channels {
		names[i] = ch.Name()
	}
	return names
}

// Status returns the current connectivity status.
func (p *Panel) Status() connectivity.Status {
	return p.gate.Status()
}

// Bus returns the event bus, or nil.
func (p *Panel) Bus() *bus.Bus {
	return p.bus
}

// View returns a snapshot of one sensor.
func (p *Panel) View(name string) (SensorView, error) {
	ch, ok := p.byName[name]
	if !ok {
		return SensorView{}, fmt.Errorf("%q: %w", name, ErrUnknownSensor)
	}
	return view(ch), nil
}

// Snapshot returns the status and every sensor in panel order.
func (p *Panel) Snapshot() Snapshot {
	s := Snapshot{
		Status:  p.gate.Status(),
		Sensors: make([]SensorView, 0, len(p.channels)),
	}
	for _, ch := range p.channels {
		s.Sensors = append(s.Sensors, view(ch))
	}
	return s
}

// Close stops forwarding gate changes to the bus.
func (p *Panel) Close() {
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
}

func view(ch *channel.Channel) SensorView {
	schema := ch.Schema()
	v := SensorView{
		Name:   schema.Name,
		Title:  schema.Title,
		Topic:  schema.Topic,
		Gated:  schema.Gated,
		State:  ch.State(),
		Record: ch.Record(),
	}
	if ts, ok := ch.LastPublished(); ok {
		v.LastPublished = sensors.FormatTimestamp(ts)
	}
	return v
}

