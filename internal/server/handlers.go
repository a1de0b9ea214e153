// Package server exposes HTTP handlers for the WebSocket gateway and the
// health check.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Jazzystic/robust-comm-system/internal/transport"
)

// WebSocketHandler upgrades GET requests and hands the connection to the hub.
// Each WebSocket data message carries one handshake step or one record.
func WebSocketHandler(hub *Hub, policy originPolicy, logger *slog.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.allows,
	}
	readLimit := max(hub.cfg.MaxRecordSize, hub.cfg.MaxHandshakeSize)

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"), "error", err)
			return
		}

		// The hub owns the connection from here; the handler's goroutine is
		// reused as the session's reader.
		hub.ServeConn(transport.NewWSConn(conn, r.RemoteAddr, readLimit))
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Stats
}

// HealthHandler reports liveness together with the hub's current counts.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", Stats: hub.Stats()})
	}
}
