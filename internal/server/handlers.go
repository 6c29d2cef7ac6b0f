package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/linechat/internal/chat"
)

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "linechat server is running!")
}

// StatsHandler serves a JSON snapshot of the connected users and groups.
func StatsHandler(log *slog.Logger, hub *chat.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. Stats endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.Stats()); err != nil {
			log.Warn("Error writing stats response", "error", err)
		}
	}
}

// WebSocketHandler upgrades GET requests from allowed origins and runs a
// chat session over the connection until it ends.
func WebSocketHandler(log *slog.Logger, hub *chat.Hub, cfg Config) http.HandlerFunc {
	cfg = sanitizeConfig(cfg)
	origins := newOriginPolicy(log, cfg.Origins())
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
			return
		}

		hub.Serve(newWSConn(conn, r.RemoteAddr, cfg.MaxLineLength, cfg.WriteTimeout))
	}
}
