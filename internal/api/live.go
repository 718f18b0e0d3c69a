package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jkaberg/trailer-panel/internal/panel"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// SnapshotMessage is the first message on the live feed.
type SnapshotMessage struct {
	Kind string `json:"kind"`
	panel.Snapshot
}

// Live upgrades to a WebSocket, sends a snapshot of the panel and then streams
// bus events as JSON until the client goes away.
func (s *Server) Live(w http.ResponseWriter, r *http.Request) {
	b := s.panel.Bus()
	if b == nil {
		http.Error(w, "live feed unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer ws.Close()

	// Subscribe before the snapshot so no update falls in between.
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(SnapshotMessage{Kind: "snapshot", Snapshot: s.panel.Snapshot()}); err != nil {
		s.logger.WithError(err).Debug("WebSocket snapshot write failed")
		return
	}

	// Reader: the feed is one-way; reading only services control frames and
	// notices when the client closes.
	done := make(chan struct{})
	go func() {
		defer close(done)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(e); err != nil {
				s.logger.WithError(err).Debug("WebSocket write failed")
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
