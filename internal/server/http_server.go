package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tyrowin/linechat/internal/chat"
)

// CreateServer creates and configures an HTTP server with the specified address and handler.
// It sets reasonable timeout values for production use.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewHTTPServer builds the HTTP server exposing hub on cfg.HTTPAddr.
func NewHTTPServer(log *slog.Logger, hub *chat.Hub, cfg Config) *http.Server {
	return CreateServer(cfg.HTTPAddr, SetupRoutes(log, hub, cfg))
}

// StartServer listens and serves until the server is shut down. A regular
// shutdown is not reported as an error.
func StartServer(log *slog.Logger, server *http.Server) error {
	log.Info("HTTP server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active requests.
// WebSocket sessions are hijacked connections and are closed by the hub.
func ShutdownServer(ctx context.Context, log *slog.Logger, server *http.Server) error {
	log.Info("Shutting down HTTP server...")

	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
		return err
	}

	log.Info("HTTP server shutdown completed")
	return nil
}
