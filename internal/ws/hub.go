// Package ws pushes plate processing events to connected dashboards.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/cliahub/qpcrhub/internal/store"
)

// Message types pushed to clients.
const (
	TypePlateDetected  = "plate_detected"
	TypePlateProcessed = "plate_processed"
	TypePlateFailed    = "plate_failed"
)

// Message is one processing event on the wire.
type Message struct {
	Type      string              `json:"type"`
	Plate     string              `json:"plate"`
	RunID     string              `json:"run_id,omitempty"`
	Detail    string              `json:"detail,omitempty"`
	Summary   *store.PlateSummary `json:"summary,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

func PlateDetected(barcode string) Message {
	return Message{Type: TypePlateDetected, Plate: barcode, Timestamp: time.Now().UTC()}
}

func PlateProcessed(summary *store.PlateSummary) Message {
	return Message{
		Type:      TypePlateProcessed,
		Plate:     summary.QPCRBarcode,
		RunID:     summary.RunID,
		Summary:   summary,
		Timestamp: time.Now().UTC(),
	}
}

func PlateFailed(barcode, detail string) Message {
	return Message{Type: TypePlateFailed, Plate: barcode, Detail: detail, Timestamp: time.Now().UTC()}
}

// Hub tracks connected clients and broadcasts events to all of them.
type Hub struct {
	log zerolog.Logger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu sync.RWMutex
}

// Client is one dashboard connection. Clients only listen; inbound
// messages are read and discarded to detect closes.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
	}
}

// Run owns the client map until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug().Int("clients", h.ClientCount()).Msg("websocket client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues the message for all clients, dropping it when the hub
// is not running.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal websocket message")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.log.Warn().Str("type", msg.Type).Msg("broadcast channel full, dropping message")
	}
}

// HandleWebSocket upgrades the request and starts the client pumps.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
