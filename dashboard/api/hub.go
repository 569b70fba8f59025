package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// EventType identifies the WebSocket messages the dashboard emits.
type EventType string

const (
	EventConnection       EventType = "connection"
	EventDatasetRefreshed EventType = "dataset_refreshed"
	EventCacheCleared     EventType = "cache_cleared"
	EventPing             EventType = "ping"
	EventPong             EventType = "pong"
)

// Event is the wire shape of every hub message.
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	ClientID  string      `json:"client_id,omitempty"`
}

const (
	clientBufferSize = 64
	writeTimeout     = 10 * time.Second
	readTimeout      = 60 * time.Second
	pingInterval     = 50 * time.Second
	maxMessageSize   = 4 * 1024
)

// wsClient is one connected dashboard frontend. A client that cannot keep
// up with its send buffer is dropped rather than blocking the hub.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans dashboard events out to connected WebSocket clients. It also
// implements the service layer's Notifier contract, turning cache refresh
// and clear events into live UI updates.
type Hub struct {
	clients    map[*wsClient]struct{}
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	log    logrus.FieldLogger
}

// NewHub creates a hub; Run must be called before clients connect.
func NewHub(log logrus.FieldLogger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*wsClient]struct{}),
		register:   make(chan *wsClient, 16),
		unregister: make(chan *wsClient, 16),
		broadcast:  make(chan []byte, 256),
		ctx:        ctx,
		cancel:     cancel,
		log:        log.WithField("component", "websocket-hub"),
	}
}

// Run starts the hub loop in the background.
func (h *Hub) Run() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.loop()
	}()
	h.log.Info("WebSocket hub started")
}

// Stop disconnects every client and shuts the hub down.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	h.wg.Wait()
	h.log.Info("WebSocket hub stopped")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifyDatasetRefreshed implements service.Notifier.
func (h *Hub) NotifyDatasetRefreshed(shape string, params map[string]interface{}) {
	data := map[string]interface{}{"shape": shape}
	for key, value := range params {
		data[key] = value
	}
	h.Broadcast(EventDatasetRefreshed, data)
}

// NotifyCacheCleared implements service.Notifier.
func (h *Hub) NotifyCacheCleared(count int) {
	h.Broadcast(EventCacheCleared, map[string]interface{}{"cleared": count})
}

// Broadcast queues an event for every connected client, dropping it when
// the hub is saturated.
func (h *Hub) Broadcast(eventType EventType, data interface{}) {
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal broadcast event")
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn("Broadcast channel full, dropping event")
	}
}

// ServeWS upgrades an HTTP request into a hub connection.
func (h *Hub) ServeWS(upgrader *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.WithError(err).Error("Failed to upgrade WebSocket connection")
			return
		}

		client := &wsClient{
			id:   uuid.NewString(),
			conn: conn,
			send: make(chan []byte, clientBufferSize),
		}

		select {
		case h.register <- client:
		case <-h.ctx.Done():
			conn.Close()
			return
		}

		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			h.writePump(client)
		}()
		go func() {
			defer h.wg.Done()
			h.readPump(client)
		}()

		h.log.WithFields(logrus.Fields{
			"client_id":   client.id,
			"remote_addr": r.RemoteAddr,
		}).Info("WebSocket client connected")
	}
}

func (h *Hub) loop() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.sendTo(client, Event{
				Type:      EventConnection,
				Data:      map[string]interface{}{"status": "connected"},
				Timestamp: time.Now(),
				ClientID:  client.id,
			})

		case client := <-h.unregister:
			h.dropClient(client)

		case payload := <-h.broadcast:
			h.mu.RLock()
			stalled := make([]*wsClient, 0)
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					stalled = append(stalled, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range stalled {
				h.log.WithField("client_id", client.id).Warn("Dropping slow WebSocket client")
				h.dropClient(client)
			}

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) dropClient(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	h.mu.Unlock()

	close(client.send)
	client.conn.Close()
}

func (h *Hub) sendTo(client *wsClient, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal client event")
		return
	}
	select {
	case client.send <- payload:
	default:
	}
}

// readPump consumes client messages, answering pings and treating any read
// error as a disconnect.
func (h *Hub) readPump(client *wsClient) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.ctx.Done():
		}
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(readTimeout))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var event Event
		if err := client.conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).WithField("client_id", client.id).Debug("WebSocket read error")
			}
			return
		}

		if event.Type == EventPing {
			h.sendTo(client, Event{Type: EventPong, Timestamp: time.Now(), ClientID: client.id})
		}
	}
}

// writePump pushes queued events to the client and keeps the connection
// alive with protocol-level pings.
func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-h.ctx.Done():
			return
		}
	}
}
