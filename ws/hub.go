package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"minesServer/config"
	"minesServer/game"
	"minesServer/service"

	"github.com/gorilla/websocket"
)

const maxRecentVerifications = 50

// Message is the envelope for every frame sent to clients
type Message struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ClientMessage is what clients send: subscribe / unsubscribe
type ClientMessage struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}

type outbound struct {
	channel string
	data    []byte
}

// Client is one connected websocket with its subscriptions
type Client struct {
	ID            string
	conn          *websocket.Conn
	hub           *Hub
	subscriptions map[string]bool
	mu            sync.RWMutex
	send          chan []byte
}

// Hub fans accepted verifications and heatmap snapshots out to subscribers
type Hub struct {
	upgrader websocket.Upgrader

	clients    map[*Client]bool
	clientsMu  sync.RWMutex
	closed     bool
	unregister chan *Client
	broadcast  chan outbound
	done       chan struct{}

	// replayed to new subscribers
	historyMu     sync.RWMutex
	recent        [][]byte
	latestHeatmap []byte

	clientIDCounter int64
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.WSReadBufferSize,
			WriteBufferSize: config.WSWriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[*Client]bool),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 100),
		done:       make(chan struct{}),
	}
}

var _ service.Broadcaster = (*Hub)(nil)

// Run dispatches events until ctx is cancelled, then drops every client
func (h *Hub) Run(ctx context.Context) {
	log.Println("🚀 Event hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			log.Println("🔌 Event hub stopped")
			return

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.clientsMu.Unlock()
			log.Printf("👋 Client unregistered: %s (Total: %d)", client.ID, total)

		case msg := <-h.broadcast:
			h.broadcastToSubscribers(msg.channel, msg.data)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.closed = true
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
		delete(h.clients, client)
	}
}

// ClientCount reports connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// broadcastToSubscribers sends data to all clients subscribed to channel
func (h *Hub) broadcastToSubscribers(channel string, data []byte) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for client := range h.clients {
		client.mu.RLock()
		subscribed := client.subscriptions[channel]
		client.mu.RUnlock()

		if subscribed {
			select {
			case client.send <- data:
			default:
				// Client's send channel is full, skip
				log.Printf("⚠️  Client %s send buffer full, skipping message", client.ID)
			}
		}
	}
}

func (h *Hub) publish(channel string, data []byte) {
	select {
	case h.broadcast <- outbound{channel: channel, data: data}:
	case <-h.done:
	default:
		log.Printf("⚠️  Broadcast queue full, dropping %s event", channel)
	}
}

// PublishVerification implements service.Broadcaster
func (h *Hub) PublishVerification(ev service.VerificationEvent) {
	data, err := json.Marshal(Message{Type: "verification", Channel: config.ChannelVerifications, Data: ev})
	if err != nil {
		log.Printf("❌ Failed to marshal verification: %v", err)
		return
	}

	h.historyMu.Lock()
	h.recent = append(h.recent, data)
	if len(h.recent) > maxRecentVerifications {
		h.recent = h.recent[1:]
	}
	h.historyMu.Unlock()

	h.publish(config.ChannelVerifications, data)
}

// PublishHeatmap implements service.Broadcaster
func (h *Hub) PublishHeatmap(hm game.Heatmap) {
	data, err := json.Marshal(Message{Type: "heatmap", Channel: config.ChannelHeatmap, Data: hm})
	if err != nil {
		log.Printf("❌ Failed to marshal heatmap: %v", err)
		return
	}

	h.historyMu.Lock()
	h.latestHeatmap = data
	h.historyMu.Unlock()

	h.publish(config.ChannelHeatmap, data)
}

// ServeWS upgrades the request and attaches the client to the hub
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	log.Println("📥 WebSocket connection from:", r.RemoteAddr)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("❌ WebSocket upgrade failed:", err)
		return
	}

	client := &Client{
		ID:            fmt.Sprintf("client-%d", atomic.AddInt64(&h.clientIDCounter, 1)),
		conn:          conn,
		hub:           h,
		subscriptions: make(map[string]bool),
		send:          make(chan []byte, config.WSSendBufferSize),
	}

	// registered before any pump runs, so initial data always has a live send channel
	h.clientsMu.Lock()
	if h.closed {
		h.clientsMu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = true
	total := len(h.clients)
	h.clientsMu.Unlock()
	log.Printf("✅ Client registered: %s (Total: %d)", client.ID, total)

	go client.writePump()
	go client.readPump()
}

// writePump sends messages from the send channel to the websocket and keeps
// the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(config.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("❌ Write error for client %s: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles subscribe/unsubscribe until the connection drops
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ Read error for client %s: %v", c.ID, err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Printf("❌ Failed to parse message from client %s: %v", c.ID, err)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg ClientMessage) {
	channel, _ := msg.Data["channel"].(string)

	switch msg.Type {
	case "subscribe":
		if channel != config.ChannelVerifications && channel != config.ChannelHeatmap {
			c.enqueue(Message{Type: "error", Data: fmt.Sprintf("unknown channel %q", channel)})
			return
		}
		c.mu.Lock()
		c.subscriptions[channel] = true
		c.mu.Unlock()
		log.Printf("📡 Client %s subscribed to: %s", c.ID, channel)

		c.sendInitialData(channel)

	case "unsubscribe":
		c.mu.Lock()
		delete(c.subscriptions, channel)
		c.mu.Unlock()
		log.Printf("📴 Client %s unsubscribed from: %s", c.ID, channel)

	default:
		log.Printf("⚠️  Unknown message type from client %s: %s", c.ID, msg.Type)
	}
}

// sendInitialData replays recent verifications or the latest heatmap
func (c *Client) sendInitialData(channel string) {
	h := c.hub

	switch channel {
	case config.ChannelVerifications:
		h.historyMu.RLock()
		items := make([]json.RawMessage, len(h.recent))
		for i, data := range h.recent {
			items[i] = data
		}
		h.historyMu.RUnlock()

		c.enqueue(Message{Type: "verification_history", Channel: channel, Data: items})

	case config.ChannelHeatmap:
		h.historyMu.RLock()
		latest := h.latestHeatmap
		h.historyMu.RUnlock()

		if latest != nil {
			c.trySend(latest)
		}
	}
}

func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("❌ Failed to marshal %s for client %s: %v", msg.Type, c.ID, err)
		return
	}
	c.trySend(data)
}

// trySend never blocks the read loop. send is only closed under the hub's
// write lock, so holding the read lock while the client is registered keeps
// it open.
func (c *Client) trySend(data []byte) {
	c.hub.clientsMu.RLock()
	defer c.hub.clientsMu.RUnlock()

	if !c.hub.clients[c] {
		return
	}

	select {
	case c.send <- data:
	default:
		log.Printf("⚠️  Client %s send buffer full, skipping message", c.ID)
	}
}
