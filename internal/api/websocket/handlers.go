package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served from arbitrary origins in development;
	// deployments front this with a reverse proxy that enforces origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests to the enriched-event stream.
type Handler struct {
	hub    *EventHub
	logger *zap.Logger
}

func NewHandler(hub *EventHub, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(conn, h.hub)
	h.hub.RegisterClient(client)

	go client.WritePump()
	go client.ReadPump()
}
