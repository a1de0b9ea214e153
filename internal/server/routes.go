package server

import (
	"log/slog"
	"net/http"
	"time"
)

// SetupRoutes configures the gateway's ServeMux: the health check at "/" and
// the WebSocket endpoint at "/ws".
func SetupRoutes(hub *Hub, cfg Config, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler(hub))
	mux.HandleFunc("/ws", WebSocketHandler(hub, newOriginPolicy(cfg.AllowedOrigins, logger), logger))
	return mux
}

// CreateServer creates the HTTP server with conservative timeouts. Write and
// idle timeouts do not apply to hijacked WebSocket connections.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
