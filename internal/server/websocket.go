package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/sitesmith/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Message types sent to browsers.
const (
	MessageFullReload = "full_reload"
	MessageCSSUpdate  = "css_update"
	MessageBuildError = "build_error"
)

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client represents a WebSocket client
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

type outbound struct {
	kind string
	data []byte
}

// Hub fans messages out to every connected browser. The most recent build
// error is replayed to browsers that connect later, until a reload message
// clears it.
type Hub struct {
	logger     logging.Logger
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64
	lastError  []byte
}

func newHub(logger logging.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msg UpdateMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(context.Background(), err, "Failed to marshal message")
		data = []byte(`{"type":"full_reload"}`)
	}

	select {
	case h.broadcast <- outbound{kind: msg.Type, data: data}:
	default:
		h.logger.Warn(context.Background(), nil, "Live reload queue full, message dropped", "type", msg.Type)
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			h.count.Store(int64(len(h.clients)))
			if h.lastError != nil {
				c.send <- h.lastError
			}
			h.logger.Debug(ctx, "Client connected", "client", c.id, "total", len(h.clients))

		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
				h.logger.Debug(ctx, "Client disconnected", "client", c.id, "total", len(h.clients))
			}

		case msg := <-h.broadcast:
			switch msg.kind {
			case MessageBuildError:
				h.lastError = msg.data
			case MessageFullReload, MessageCSSUpdate:
				h.lastError = nil
			}
			for c := range h.clients {
				select {
				case c.send <- msg.data:
				default:
					// Client's send channel is full, drop it
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

func (s *Server) handleLiveReload(w http.ResponseWriter, r *http.Request) {
	// Validate origin before accepting connection
	s.clients.Add(1)
	defer s.clients.Done()

	if !s.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin checked above
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
		hub:  s.hub,
	}
	if !s.hub.add(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.writePump()
	}()
	client.readPump()
	<-done
}

// readPump consumes frames until the connection ends. Browsers never send
// anything; reading keeps pings and close frames flowing.
func (c *Client) readPump() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && status != -1 {
				c.hub.logger.Debug(context.Background(), "WebSocket closed", "client", c.id, "status", status.String())
			}
			return
		}
	}
}

// writePump delivers queued messages and pings. It closes the connection
// once the hub closes the send channel.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusGoingAway, "")
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.conn.Close(websocket.StatusInternalError, "write failed")
				c.drain()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.conn.Close(websocket.StatusGoingAway, "")
				c.drain()
				return
			}
		}
	}
}

// drain discards messages until the hub closes the send channel.
func (c *Client) drain() {
	for range c.send {
	}
}
