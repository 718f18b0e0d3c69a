package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jkaberg/trailer-panel/internal/channel"
	"github.com/jkaberg/trailer-panel/internal/panel"
	"github.com/jkaberg/trailer-panel/internal/sensors"
	"github.com/sirupsen/logrus"
)

// maxBodySize bounds field mutation bodies.
const maxBodySize = 1 << 16

// SensorDetail is one sensor together with its field schema.
type SensorDetail struct {
	panel.SensorView
	Fields []sensors.Field `json:"fields"`
}

// SetFieldRequest is the body of a field mutation.
type SetFieldRequest struct {
	Value interface{} `json:"value"`
}

// MutationResponse reports the record after a mutation and the publish attempt.
type MutationResponse struct {
	Record sensors.Record `json:"record"`
	Result channel.Result `json:"result"`
}

// Health reports liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

// Status reports the connectivity gate.
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.panel.Status())
}

// ListSensors returns every sensor in panel order.
func (s *Server) ListSensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.panel.Snapshot().Sensors)
}

// GetSensor returns one sensor with its field schema.
func (s *Server) GetSensor(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "sensor")
	ch, ok := s.panel.Channel(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%q: %w", name, panel.ErrUnknownSensor))
		return
	}
	view, err := s.panel.View(name)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, SensorDetail{SensorView: view, Fields: ch.Schema().Fields})
}

// SetField applies {"value": ...} to one field of a sensor.
func (s *Server) SetField(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "sensor")
	field := chi.URLParam(r, "field")

	ch, ok := s.panel.Channel(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%q: %w", name, panel.ErrUnknownSensor))
		return
	}

	req, err := decodeSetField(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := ch.SetField(field, req.Value)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"sensor": name,
			"field":  field,
		}).WithError(err).Debug("Rejected field update")
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, MutationResponse{Record: res.Record, Result: res})
}

// Toggle flips a sensor's boolean state. Only the switch has one.
func (s *Server) Toggle(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "sensor")
	ch, ok := s.panel.Channel(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%q: %w", name, panel.ErrUnknownSensor))
		return
	}

	res, err := ch.Toggle()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, MutationResponse{Record: res.Record, Result: res})
}

func decodeSetField(r *http.Request) (SetFieldRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return SetFieldRequest{}, fmt.Errorf("failed to read body: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return SetFieldRequest{}, fmt.Errorf("invalid request body: %w", err)
	}
	value, ok := raw["value"]
	if !ok {
		return SetFieldRequest{}, errors.New(`request body needs a "value"`)
	}

	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var req SetFieldRequest
	if err := dec.Decode(&req.Value); err != nil {
		return SetFieldRequest{}, fmt.Errorf("invalid value: %w", err)
	}
	return req, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, panel.ErrUnknownSensor):
		return http.StatusNotFound
	case errors.Is(err, sensors.ErrUnknownField),
		errors.Is(err, sensors.ErrReadOnlyField),
		errors.Is(err, sensors.ErrInvalidValue):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
