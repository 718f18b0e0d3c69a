package app

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jkaberg/trailer-panel/internal/bus"
	"github.com/jkaberg/trailer-panel/internal/config"
	"github.com/jkaberg/trailer-panel/internal/connectivity"
	"github.com/jkaberg/trailer-panel/internal/panel"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeUntilCancelled(t *testing.T) {
	logger, _ := test.NewNullLogger()
	gate := connectivity.NewGate(nil)
	p := panel.New(gate, nil, bus.New(), logger)
	defer p.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, p, "test", logger) }()

	url := "http://" + ln.Addr().String() + "/api/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(config.HTTPShutdownTimeout + time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRunRejectsBadAddress(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := config.GetDefaultConfig()
	cfg.ListenAddr = "256.0.0.1:99999"

	p := panel.New(connectivity.NewGate(nil), nil, nil, logger)
	err := Run(context.Background(), cfg, p, "test", logger)
	assert.Error(t, err)
}

func TestWatchStatusLogsTransitions(t *testing.T) {
	logger, hook := test.NewNullLogger()
	b := bus.New()
	sub := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watchStatus(ctx, sub, logger) }()

	b.Publish(bus.StatusEvent(connectivity.Status{Connected: false, Label: connectivity.LabelReconnecting}))

	require.Eventually(t, func() bool {
		e := hook.LastEntry()
		return e != nil && e.Message == "Connectivity: Reconnecting..."
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
