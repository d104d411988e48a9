// Package api implements the HTTP surface: endpoint routing, query
// parameter validation, and the translation of session errors into
// status codes.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/edgard/tgchanapi/internal/config"
	"github.com/edgard/tgchanapi/internal/logger"
	"github.com/edgard/tgchanapi/internal/metrics"
	"github.com/edgard/tgchanapi/internal/model"
	"github.com/edgard/tgchanapi/internal/telegram"
)

// Service identity reported by the root endpoint.
const (
	ServiceName = "Telegram Channel API"
	Version     = "1.0.0"
)

// Telegram is the session capability set the handlers depend on.
type Telegram interface {
	Connected() bool
	Channels(ctx context.Context) ([]model.Channel, error)
	ChannelMessages(ctx context.Context, channelID int64, page telegram.PageRequest) ([]model.Message, error)
	ChannelMessagesByUsername(ctx context.Context, username string, page telegram.PageRequest) ([]model.Message, error)
}

// Server is the HTTP server for the channel API.
type Server struct {
	logger  *slog.Logger
	tg      Telegram
	metrics *metrics.Metrics
	srv     *http.Server
}

// NewServer creates the server with all routes and middleware wired.
func NewServer(log *slog.Logger, cfg config.ServerConfig, tg Telegram, m *metrics.Metrics) *Server {
	s := &Server{
		logger:  log.With("component", "api"),
		tg:      tg,
		metrics: m,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /channels", s.handleListChannels)
	mux.HandleFunc("GET /channels/{id}/messages", s.handleMessagesByID)
	mux.HandleFunc("GET /channels/by-username/{name}/messages", s.handleMessagesByUsername)
	mux.Handle("GET /metrics", m.Handler())

	var handler http.Handler = mux
	handler = middleware.Recoverer(handler)
	handler = m.Middleware(handler)
	handler = logger.Middleware(s.logger)(handler)
	handler = middleware.RealIP(handler)
	handler = middleware.RequestID(handler)

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown is called or
// the listener fails.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the full middleware-wrapped handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
