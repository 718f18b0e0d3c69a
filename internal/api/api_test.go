package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jkaberg/trailer-panel/internal/bus"
	"github.com/jkaberg/trailer-panel/internal/connectivity"
	"github.com/jkaberg/trailer-panel/internal/panel"
	"github.com/jkaberg/trailer-panel/internal/sensors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	topics []string
}

func (r *recorder) Transmit(topic string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}

type fixture struct {
	gate *connectivity.Gate
	tx   *recorder
	srv  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gate := connectivity.NewGate(nil)
	gate.OnConnect()
	tx := &recorder{}
	p := panel.New(gate, tx, bus.New(), logger)
	t.Cleanup(p.Close)

	srv := httptest.NewServer(NewServer(p, "test", logger))
	t.Cleanup(srv.Close)
	return &fixture{gate: gate, tx: tx, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = f.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, connectivity.LabelConnected, body["status"])

	f.gate.OnError("boom")
	_, body = f.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, "Error: boom", body["status"])
}

func TestListSensors(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/sensors")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw []map[string]interface{}
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Len(t, raw, 4)
	for i, name := range []string{sensors.Switch, sensors.Temperature, sensors.Water, sensors.Power} {
		assert.Equal(t, name, raw[i]["name"])
		assert.Equal(t, "ready", raw[i]["state"])
		assert.NotEmpty(t, raw[i]["last_published"])
	}
}

func TestGetSensor(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/api/sensors/water", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, sensors.WaterTopic, body["topic"])
	fields, ok := body["fields"].([]interface{})
	require.True(t, ok)
	assert.Len(t, fields, 7)

	code, _ = f.do(t, http.MethodGet, "/api/sensors/radar", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSetField(t *testing.T) {
	f := newFixture(t)
	seeded := f.tx.count()

	code, body := f.do(t, http.MethodPut, "/api/sensors/water/fields/level", `{"value": 40}`)
	require.Equal(t, http.StatusOK, code)
	record := body["record"].(map[string]interface{})
	assert.Equal(t, 40.0, record["level"])
	result := body["result"].(map[string]interface{})
	assert.Equal(t, true, result["published"])
	assert.Equal(t, sensors.WaterTopic, result["topic"])
	assert.Equal(t, seeded+1, f.tx.count())

	code, body = f.do(t, http.MethodPut, "/api/sensors/power/fields/power_factor", `{"value": "0.8"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0.8, body["record"].(map[string]interface{})["powerFactor"])
}

func TestSetFieldResponseMatchesOwnUpdate(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(level int) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPut, f.srv.URL+"/api/sensors/water/fields/level",
				strings.NewReader(fmt.Sprintf(`{"value": %d}`, level)))
			if !assert.NoError(t, err) {
				return
			}
			resp, err := http.DefaultClient.Do(req)
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()

			var body struct {
				Record map[string]interface{} `json:"record"`
			}
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, float64(level), body.Record["level"])
		}(i)
	}
	wg.Wait()
}

func TestSetFieldErrors(t *testing.T) {
	f := newFixture(t)
	seeded := f.tx.count()

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown sensor", "/api/sensors/radar/fields/level", `{"value": 1}`, http.StatusNotFound},
		{"unknown field", "/api/sensors/water/fields/volume", `{"value": 1}`, http.StatusBadRequest},
		{"read-only field", "/api/sensors/water/fields/sensor", `{"value": "Radar"}`, http.StatusBadRequest},
		{"timestamp", "/api/sensors/water/fields/timestamp", `{"value": "now"}`, http.StatusBadRequest},
		{"not an option", "/api/sensors/water/fields/status", `{"value": "empty"}`, http.StatusBadRequest},
		{"missing value", "/api/sensors/water/fields/level", `{"level": 1}`, http.StatusBadRequest},
		{"bad json", "/api/sensors/water/fields/level", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.want, code)
			assert.NotEmpty(t, body["error"])
		})
	}
	assert.Equal(t, seeded, f.tx.count())
}

func TestDisabledSensorIsNotPublished(t *testing.T) {
	f := newFixture(t)
	seeded := f.tx.count()

	code, body := f.do(t, http.MethodPut, "/api/sensors/temperature/fields/enabled", `{"value": false}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "disabled", body["result"].(map[string]interface{})["skipped"])
	assert.Equal(t, seeded, f.tx.count())
}

func TestToggle(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/api/sensors/switch/toggle", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["record"].(map[string]interface{})["state"])

	code, body = f.do(t, http.MethodPost, "/api/sensors/switch/toggle", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["record"].(map[string]interface{})["state"])

	code, _ = f.do(t, http.MethodPost, "/api/sensors/power/toggle", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestLiveFeed(t *testing.T) {
	f := newFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snap map[string]interface{}
	require.NoError(t, ws.ReadJSON(&snap))
	assert.Equal(t, "snapshot", snap["kind"])
	assert.Len(t, snap["sensors"], 4)

	code, _ := f.do(t, http.MethodPost, "/api/sensors/switch/toggle", "")
	require.Equal(t, http.StatusOK, code)

	var e map[string]interface{}
	require.NoError(t, ws.ReadJSON(&e))
	assert.Equal(t, bus.KindRecord, e["kind"])
	assert.Equal(t, sensors.Switch, e["sensor"])
	assert.Equal(t, true, e["record"].(map[string]interface{})["state"])

	f.gate.OnOffline()
	var status map[string]interface{}
	require.NoError(t, ws.ReadJSON(&status))
	assert.Equal(t, bus.KindStatus, status["kind"])
	assert.Equal(t, connectivity.LabelOffline, status["status"].(map[string]interface{})["status"])
}
