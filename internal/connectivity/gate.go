// Package connectivity tracks whether the publish transport is usable.
//
// The Gate is fed by transport lifecycle callbacks and read by every sensor
// channel before it publishes. It never filters or debounces: each event is
// applied as reported and listeners are notified synchronously.
package connectivity

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Status labels reported by the gate.
const (
	LabelDisconnected = "Disconnected"
	LabelConnected    = "Connected"
	LabelOffline      = "Offline"
	LabelReconnecting = "Reconnecting..."
	labelErrorPrefix  = "Error: "
)

// Status is a point-in-time view of the gate.
type Status struct {
	Connected bool   `json:"connected"`
	Label     string `json:"status"`
}

// Reader is the read-only side of the gate handed to sensor channels.
type Reader interface {
	Connected() bool
	Status() Status
}

// Gate holds the current connectivity status.
type Gate struct {
	// applyMu orders events end to end: listeners see every status in the
	// order the events were applied.
	applyMu sync.Mutex

	mu        sync.RWMutex
	status    Status
	listeners []listener
	nextID    int
	logger    *logrus.Logger
}

type listener struct {
	id int
	fn func(Status)
}

// NewGate returns a gate in the initial "Disconnected" state.
func NewGate(logger *logrus.Logger) *Gate {
	return &Gate{
		status: Status{Connected: false, Label: LabelDisconnected},
		logger: logger,
	}
}

// Connected reports whether publishing is currently allowed.
func (g *Gate) Connected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status.Connected
}

// Status returns the current status.
func (g *Gate) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// OnConnect records a successful connection.
func (g *Gate) OnConnect() {
	g.apply(func(s *Status) {
		s.Connected = true
		s.Label = LabelConnected
	})
}

// OnError records a transport error. The connected flag is left unchanged;
// only an offline event clears it.
func (g *Gate) OnError(message string) {
	g.apply(func(s *Status) {
		s.Label = labelErrorPrefix + message
	})
}

// OnOffline records that the transport went offline.
func (g *Gate) OnOffline() {
	g.apply(func(s *Status) {
		s.Connected = false
		s.Label = LabelOffline
	})
}

// OnReconnecting records a reconnect attempt. The connected flag is left
// unchanged.
func (g *Gate) OnReconnecting() {
	g.apply(func(s *Status) {
		s.Label = LabelReconnecting
	})
}

// Subscribe registers fn to be called after every event, in registration
// order. fn may read the gate but must not report events to it. The returned
// func removes the listener.
func (g *Gate) Subscribe(fn func(Status)) (unsubscribe func()) {
	g.mu.Lock()
	g.nextID++
	id := g.nextID
	g.listeners = append(g.listeners, listener{id: id, fn: fn})
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		for i, l := range g.listeners {
			if l.id == id {
				g.listeners = append(g.listeners[:i], g.listeners[i+1:]...)
				return
			}
		}
	}
}

func (g *Gate) apply(mutate func(*Status)) {
	g.applyMu.Lock()
	defer g.applyMu.Unlock()

	g.mu.Lock()
	mutate(&g.status)
	current := g.status
	fns := make([]func(Status), len(g.listeners))
	for i, l := range g.listeners {
		fns[i] = l.fn
	}
	g.mu.Unlock()

	if g.logger != nil {
		g.logger.WithFields(logrus.Fields{
			"connected": current.Connected,
			"status":    current.Label,
		}).Debug("Connectivity changed")
	}

	// Listeners run outside mu so they may read the gate.
	for _, fn := range fns {
		fn(current)
	}
}
