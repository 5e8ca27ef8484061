package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"geofleet/api/internal/service"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development, configure for production
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// wsClient is one WebSocket subscriber to the config event stream.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub
}

// WSHub fans geofence configuration events out to WebSocket clients.
// Events arrive over NATS from this service's own publisher, so all API
// replicas see every change.
type WSHub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	natsConn   *nats.Conn
	sub        *nats.Subscription
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(nc *nats.Conn) *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		natsConn:   nc,
	}
}

// Run starts the hub's event loop.
func (h *WSHub) Run() {
	if h.natsConn != nil {
		sub, err := h.natsConn.Subscribe(service.SubjectConfigAll, func(msg *nats.Msg) {
			data, err := json.Marshal(map[string]interface{}{
				"type": msg.Subject,
				"data": json.RawMessage(msg.Data),
			})
			if err != nil {
				log.Printf("[WS] Failed to marshal broadcast message: %v", err)
				return
			}
			h.broadcast <- data
		})
		if err != nil {
			log.Printf("[WS] Failed to subscribe to NATS: %v", err)
			return
		}
		h.sub = sub
		log.Println("[WS] Hub started, subscribed to geofence config events")
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[WS] Client connected: %s, total clients: %d", client.id, len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("[WS] Client disconnected: %s, total clients: %d", client.id, len(h.clients))

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*wsClient, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Client send buffer is full, close connection
					h.unregister <- client
				}
			}
		}
	}
}

// Stop stops the hub and cleans up resources.
func (h *WSHub) Stop() {
	if h.sub != nil {
		h.sub.Unsubscribe()
	}
	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
		delete(h.clients, client)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Client %s read error: %v", c.id, err)
			}
			break
		}

		var wsMsg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &wsMsg); err == nil && wsMsg.Type == "ping" {
			select {
			case c.send <- []byte(`{"type":"pong"}`):
			default:
			}
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WSHandler upgrades connections onto the hub.
type WSHandler struct {
	hub *WSHub
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(hub *WSHub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleEvents handles WebSocket connections for config event updates
// @Summary Config event stream
// @Description WebSocket stream of geofence and rule configuration changes
// @Tags Events
// @Router /ws/events [get]
func (h *WSHandler) HandleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Failed to upgrade connection: %v", err)
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h.hub,
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	welcome := map[string]interface{}{
		"type":     "connected",
		"clientid": client.id,
	}
	if data, err := json.Marshal(welcome); err == nil {
		select {
		case client.send <- data:
		default:
		}
	}
}

// Stats returns WebSocket hub statistics.
func (h *WSHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": h.hub.ClientCount(),
	})
}
