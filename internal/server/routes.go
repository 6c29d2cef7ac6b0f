package server

import (
	"log/slog"
	"net/http"

	"github.com/Tyrowin/linechat/internal/chat"
)

// SetupRoutes configures and returns an HTTP ServeMux with the health check,
// the stats snapshot and the WebSocket chat endpoint.
func SetupRoutes(log *slog.Logger, hub *chat.Hub, cfg Config) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/stats", StatsHandler(log, hub))
	mux.HandleFunc("/ws", WebSocketHandler(log, hub, cfg))
	return mux
}
