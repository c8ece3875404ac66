// Package ws is the device bridge. Connected devices receive hand-off links,
// notices and dispatch progress, and report their foreground state back.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"quickping/internal/lifecycle"
	"quickping/internal/whatsapp"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNoDevice is returned by Open when no device is connected to receive the
// link.
var ErrNoDevice = errors.New("no device connected")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// LifecycleSink receives foreground state reported by devices.
type LifecycleSink interface {
	Set(lifecycle.State)
}

// Client represents a connected WebSocket client
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex

	sink LifecycleSink
	log  *zap.Logger
}

func NewHub(sink LifecycleSink, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		sink:       sink,
		log:        logger.Named("ws"),
	}
}

// Run serves registrations and broadcasts until ctx is done, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Info("device connected", zap.Int("clients", h.Clients()))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Info("device disconnected", zap.Int("clients", h.Clients()))
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients reports how many devices are connected.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

type WSEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func encode(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(WSEvent{Type: eventType, Data: data})
}

// BroadcastEvent queues an event for every device. It never blocks: when the
// queue is full the event is dropped.
func (h *Hub) BroadcastEvent(eventType string, data interface{}) {
	payload, err := encode(eventType, data)
	if err != nil {
		h.log.Error("marshal event", zap.String("type", eventType), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- payload:
	case <-h.done:
	default:
		h.log.Warn("event dropped, broadcast queue full", zap.String("type", eventType))
	}
}

// Open hands a link to the connected devices, which open it in the messaging
// app. The link is written straight into each client's send buffer; a client
// whose buffer is full is skipped. It fails with ErrNoDevice when no client
// accepted the link.
func (h *Hub) Open(ctx context.Context, link whatsapp.Link) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encode("handoff", link)
	if err != nil {
		return err
	}

	h.mu.Lock()
	delivered := 0
	for client := range h.clients {
		select {
		case client.send <- payload:
			delivered++
		default:
			h.log.Warn("device send buffer full, hand-off not delivered")
		}
	}
	h.mu.Unlock()

	if delivered == 0 {
		return ErrNoDevice
	}
	return nil
}

func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
}

// inbound is a device report: {"type":"lifecycle","state":"background"}.
type inbound struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.hub.receive(data)
	}
}

func (h *Hub) receive(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		h.log.Debug("ignoring malformed device message", zap.Error(err))
		return
	}
	if msg.Type != "lifecycle" {
		return
	}
	state, err := lifecycle.ParseState(msg.State)
	if err != nil {
		h.log.Debug("ignoring lifecycle report", zap.Error(err))
		return
	}
	if h.sink != nil {
		h.sink.Set(state)
	}
}

func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
