package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/worldwatch/intel-backend/internal/service/anomaly"
	"github.com/worldwatch/intel-backend/internal/service/enrichment"
)

// MessageType identifies the kind of stream message.
type MessageType string

const (
	MessageEnrichedEvent MessageType = "event.enriched"
	MessageConnected     MessageType = "connection.established"
	MessagePong          MessageType = "pong"
)

// StreamMessage is the envelope pushed to dashboard clients.
type StreamMessage struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// EventFilters narrows which enriched events a client receives.
type EventFilters struct {
	AnomalousOnly bool                `json:"anomalous_only,omitempty"`
	AlertsOnly    bool                `json:"alerts_only,omitempty"`
	RiskLevels    []anomaly.RiskLevel `json:"risk_levels,omitempty"`
}

// EventHub fans enriched events out to WebSocket clients.
type EventHub struct {
	logger      *zap.Logger
	clients     map[uuid.UUID]*Client
	clientsLock sync.RWMutex
	broadcast   chan *enrichment.EnrichedEvent
	register    chan *Client
	unregister  chan *Client
}

// Client is one connected dashboard session. filters is written by the
// client's read pump and read by the hub goroutine, so access goes through
// filtersMu.
type Client struct {
	ID   uuid.UUID
	conn *websocket.Conn
	send chan *StreamMessage
	hub  *EventHub

	filtersMu sync.RWMutex
	filters   EventFilters
}

func NewEventHub(logger *zap.Logger) *EventHub {
	return &EventHub{
		logger:     logger,
		clients:    make(map[uuid.UUID]*Client),
		broadcast:  make(chan *enrichment.EnrichedEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run drives the hub until the context is canceled.
func (h *EventHub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case ev := <-h.broadcast:
			h.broadcastEvent(ev)
		case <-ticker.C:
			h.pingClients()
		}
	}
}

// BroadcastBatch queues an augmented batch for delivery. Slow consumers never
// block the pipeline: when the queue is full the batch tail is dropped.
func (h *EventHub) BroadcastBatch(events []*enrichment.EnrichedEvent) {
	for _, ev := range events {
		select {
		case h.broadcast <- ev:
		default:
			h.logger.Warn("event broadcast queue full, dropping",
				zap.String("event_id", ev.Event.ID))
			return
		}
	}
}

// RegisterClient adds a client to the hub.
func (h *EventHub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient removes a client from the hub.
func (h *EventHub) UnregisterClient(client *Client) {
	h.unregister <- client
}

func (h *EventHub) registerClient(client *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	h.clients[client.ID] = client
	h.logger.Info("websocket client registered",
		zap.String("client_id", client.ID.String()))

	welcome := &StreamMessage{
		ID:        uuid.NewString(),
		Type:      MessageConnected,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"client_id": client.ID.String(),
		},
	}
	select {
	case client.send <- welcome:
	default:
	}
}

func (h *EventHub) unregisterClient(client *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	if _, exists := h.clients[client.ID]; exists {
		delete(h.clients, client.ID)
		close(client.send)
		h.logger.Info("websocket client unregistered",
			zap.String("client_id", client.ID.String()))
	}
}

func (h *EventHub) broadcastEvent(ev *enrichment.EnrichedEvent) {
	msg := &StreamMessage{
		ID:        uuid.NewString(),
		Type:      MessageEnrichedEvent,
		Timestamp: time.Now(),
		Payload:   ev,
	}

	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()

	for _, client := range h.clients {
		if !client.wantsEvent(ev) {
			continue
		}
		select {
		case client.send <- msg:
		default:
			h.logger.Warn("client send buffer full, disconnecting",
				zap.String("client_id", client.ID.String()))
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

func (h *EventHub) pingClients() {
	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()

	for _, client := range h.clients {
		if err := client.conn.WriteControl(
			websocket.PingMessage,
			nil,
			time.Now().Add(10*time.Second),
		); err != nil {
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

func (h *EventHub) shutdown() {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	for _, client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	h.clients = make(map[uuid.UUID]*Client)
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, hub *EventHub) *Client {
	return &Client{
		ID:   uuid.New(),
		conn: conn,
		send: make(chan *StreamMessage, 32),
		hub:  hub,
	}
}

// ReadPump consumes client messages (filter updates, pings) until the
// connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error",
					zap.String("client_id", c.ID.String()),
					zap.Error(err))
			}
			break
		}

		var msg struct {
			Type    string       `json:"type"`
			Filters EventFilters `json:"filters"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "update_filters":
			c.SetFilters(msg.Filters)
			c.hub.logger.Info("client filters updated",
				zap.String("client_id", c.ID.String()))
		case "ping":
			pong := &StreamMessage{
				ID:        uuid.NewString(),
				Type:      MessagePong,
				Timestamp: time.Now(),
			}
			select {
			case c.send <- pong:
			default:
			}
		}
	}
}

// WritePump delivers queued messages and keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SetFilters replaces the client's event filters.
func (c *Client) SetFilters(filters EventFilters) {
	c.filtersMu.Lock()
	c.filters = filters
	c.filtersMu.Unlock()
}

func (c *Client) wantsEvent(ev *enrichment.EnrichedEvent) bool {
	c.filtersMu.RLock()
	filters := c.filters
	c.filtersMu.RUnlock()

	anomalies := ev.Augmentation.Anomalies

	if filters.AnomalousOnly && (anomalies == nil || !anomalies.IsAnomalous) {
		return false
	}
	if filters.AlertsOnly && len(ev.Augmentation.TriggeredAlerts) == 0 {
		return false
	}
	if len(filters.RiskLevels) > 0 {
		if anomalies == nil {
			return false
		}
		found := false
		for _, level := range filters.RiskLevels {
			if level == anomalies.RiskLevel {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
