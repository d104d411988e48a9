// Package app orchestrates the component lifecycle of the channel API:
// the Telegram session, the HTTP server, and the refresh scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/tgchanapi/internal/api"
	"github.com/edgard/tgchanapi/internal/config"
	"github.com/edgard/tgchanapi/internal/telegram"
)

// App ties the started components together and drives shutdown.
type App struct {
	logger    *slog.Logger
	cfg       *config.Config
	session   *telegram.Session
	server    *api.Server
	scheduler *Scheduler
}

// New creates the orchestrator. scheduler may be nil when the periodic
// dialog refresh is disabled.
func New(logger *slog.Logger, cfg *config.Config, session *telegram.Session, server *api.Server, scheduler *Scheduler) *App {
	return &App{
		logger:    logger.With("component", "app"),
		cfg:       cfg,
		session:   session,
		server:    server,
		scheduler: scheduler,
	}
}

// Run serves until ctx is cancelled or a component fails, then shuts
// everything down gracefully. The session must already be started.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- a.server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server failed: %w", err)
			}
			return errors.New("http server stopped unexpectedly")
		case <-gCtx.Done():
			a.logger.Info("Shutdown signal received, stopping HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("Error during HTTP server shutdown", "error", err)
			}
			return nil
		}
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			a.logger.Info("Shutdown signal received, stopping telegram session...")
			if err := a.session.Stop(); err != nil {
				// Best effort on the way out.
				a.logger.Error("Error stopping telegram session", "error", err)
			}
			return nil
		case err := <-a.session.Done():
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("telegram session terminated: %w", err)
			}
			return errors.New("telegram session stopped unexpectedly")
		}
	})

	if a.scheduler != nil {
		g.Go(func() error {
			if err := a.scheduler.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			<-gCtx.Done()
			a.logger.Info("Shutdown signal received, stopping scheduler...")
			if err := a.scheduler.Stop(); err != nil {
				a.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	a.logger.Info("Application running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Application stopped due to error", "error", err)
		return err
	}

	a.logger.Info("Application stopped gracefully.")
	return nil
}
