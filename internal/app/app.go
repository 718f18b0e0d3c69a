package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/jkaberg/trailer-panel/internal/api"
	"github.com/jkaberg/trailer-panel/internal/bus"
	"github.com/jkaberg/trailer-panel/internal/config"
	"github.com/jkaberg/trailer-panel/internal/panel"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Run serves the panel API on cfg.ListenAddr and blocks until ctx is
// cancelled or the server fails.
func Run(ctx context.Context, cfg *config.Config, p *panel.Panel, version string, logger *logrus.Logger) error {
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}
	return Serve(ctx, ln, p, version, logger)
}

// Serve runs the API server on ln alongside the status watcher. On
// cancellation the server is given config.HTTPShutdownTimeout to drain.
func Serve(parentCtx context.Context, ln net.Listener, p *panel.Panel, version string, logger *logrus.Logger) error {
	srv := &http.Server{
		Handler:           api.NewServer(p, version, logger),
		ReadHeaderTimeout: config.HTTPReadTimeout,
	}

	grp, ctx := errgroup.WithContext(parentCtx)

	// HTTP server ----------------------------------------------------------
	grp.Go(func() error {
		logger.WithField("addr", ln.Addr().String()).Info("Panel API listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("panel API: %w", err)
		}
		return nil
	})

	grp.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.HTTPShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("app: HTTP shutdown incomplete")
		}
		return nil
	})

	// Status watcher -------------------------------------------------------
	if b := p.Bus(); b != nil {
		sub := b.Subscribe()
		grp.Go(func() error {
			defer b.Unsubscribe(sub)
			return watchStatus(ctx, sub, logger)
		})
	}

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchStatus logs connectivity changes and failed publishes from the bus.
func watchStatus(ctx context.Context, sub <-chan bus.Event, logger *logrus.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-sub:
			if !ok {
				return nil
			}
			switch {
			case e.Kind == bus.KindStatus && e.Status != nil:
				logger.WithField("connected", e.Status.Connected).Info("Connectivity: " + e.Status.Label)
			case e.Kind == bus.KindRecord && e.Result != nil && e.Result.Err != nil:
				logger.WithFields(logrus.Fields{
					"sensor": e.Sensor,
					"topic":  e.Result.Topic,
				}).WithError(e.Result.Err).Warn("Sensor state not delivered")
			}
		}
	}
}
