package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/jkaberg/trailer-panel/internal/panel"
	"github.com/sirupsen/logrus"
)

// Server represents the panel API server
type Server struct {
	router   *chi.Mux
	panel    *panel.Panel
	version  string
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

// NewServer creates the API server for p
func NewServer(p *panel.Panel, version string, logger *logrus.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		panel:   p,
		version: version,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The panel has no access control; any origin may watch.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	r := s.router

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.Health)
	r.Get("/api/status", s.Status)

	// Sensors
	r.Get("/api/sensors", s.ListSensors)
	r.Get("/api/sensors/{sensor}", s.GetSensor)
	r.Put("/api/sensors/{sensor}/fields/{field}", s.SetField)
	r.Post("/api/sensors/{sensor}/toggle", s.Toggle)

	// Live feed (WebSocket)
	r.Get("/api/ws", s.Live)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs every request through logrus. WebSocket upgrades are
// logged when the connection closes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

// writeJSON writes JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
