package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"broadcast-console/pkg/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the console is served same-host; CORS is handled by gin
	},
}

const (
	sendBuffer      = 256
	broadcastBuffer = 64
)

// Client represents a connected operator view
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
	seq  uint64
}

type directMessage struct {
	view    string
	payload []byte
}

// Hub maintains the set of connected views and fans events out to them.
// Hand-offs are the exception: each one goes to a single view.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	direct     chan directMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	log        zerolog.Logger
	registered uint64
	views      atomic.Uint64

	// Greeting, when set, builds the "state" event sent to each view as it connects.
	Greeting func() interface{}
}

// NewHub creates a hub. Nothing is delivered until Run is started.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, broadcastBuffer),
		direct:     make(chan directMessage, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "ws").Logger(),
	}
}

// Run serves registrations and delivers queued events until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.registered++
			client.seq = h.registered
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("clients", n).Str("view", client.id).Msg("view connected")
			h.introduce(client)
			h.greet(client)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("clients", n).Msg("view disconnected")
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
		case m := <-h.direct:
			h.deliver(m)
		}
	}
}

// deliver sends m to the view it names or, when that view is unknown, to
// the view that connected last.
func (h *Hub) deliver(m directMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var target *Client
	for client := range h.clients {
		if m.view != "" && client.id == m.view {
			target = client
			break
		}
		if target == nil || client.seq > target.seq {
			target = client
		}
	}
	if target == nil {
		h.log.Debug().Str("view", m.view).Msg("no view connected, dropping hand-off")
		return
	}
	select {
	case target.send <- m.payload:
	default:
		close(target.send)
		delete(h.clients, target)
	}
}

// introduce tells a view the id its hand-offs are routed by.
func (h *Hub) introduce(client *Client) {
	payload, err := encode("view", map[string]string{"id": client.id})
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
	default:
	}
}

func (h *Hub) greet(client *Client) {
	if h.Greeting == nil {
		return
	}
	payload, err := encode("state", h.Greeting())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to encode state event")
		return
	}
	select {
	case client.send <- payload:
	default:
	}
}

// WSEvent is the envelope of every message pushed to a view.
type WSEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func encode(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(WSEvent{Type: eventType, Data: data})
}

// BroadcastEvent queues an event for every connected view. When the queue is
// full the event is dropped.
func (h *Hub) BroadcastEvent(eventType string, data interface{}) {
	payload, err := encode(eventType, data)
	if err != nil {
		h.log.Error().Err(err).Str("type", eventType).Msg("failed to encode event")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn().Str("type", eventType).Msg("event queue full, dropping event")
	}
}

// Open asks one view to open target in a new tab or the platform's
// messaging handler: the view carried by ctx (see WithView), else the one
// that connected last.
func (h *Hub) Open(ctx context.Context, target models.HandoffTarget) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := encode("handoff", target)
	if err != nil {
		return err
	}
	select {
	case h.direct <- directMessage{view: ViewFrom(ctx), payload: payload}:
	default:
		h.log.Warn().Str("url", target.URL).Msg("hand-off queue full, dropping hand-off")
	}
	return nil
}

type viewKey struct{}

// WithView marks ctx as originating from the view with the given id.
func WithView(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, viewKey{}, id)
}

// ViewFrom returns the view id set by WithView, or "".
func ViewFrom(ctx context.Context) string {
	id, _ := ctx.Value(viewKey{}).(string)
	return id
}

// Navigate sends the views to path, e.g. back to the admin login.
func (h *Hub) Navigate(path string) {
	h.BroadcastEvent("navigate", map[string]string{"path": path})
}

// Clients reports how many views are connected.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWs upgrades a view's connection. A view that reconnects passes its
// previous id as the "view" query parameter to keep receiving its hand-offs.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	id := r.URL.Query().Get("view")
	if id == "" {
		id = fmt.Sprintf("view-%d", h.views.Add(1))
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), id: id}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
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
		// views only send pings; commands go through the REST routes
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
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
