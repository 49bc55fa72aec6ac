package handlers

import (
	"encoding/json"
	"geotag-service/internal/domain"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventBuffer    = 32
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxClientFrame = 512
)

// Event is the envelope pushed to /events subscribers.
type Event struct {
	Kind string `json:"kind"` // "room" or "brightness"
	Data any    `json:"data"`
}

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub fans room and brightness events out to websocket clients.
//
// Publishing never blocks: a client whose buffer is full misses the event.
type EventHub struct {
	mu       sync.Mutex
	clients  map[*eventClient]struct{}
	closed   bool
	upgrader websocket.Upgrader
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[*eventClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *EventHub) PublishRoomEvent(ev domain.RoomEvent) {
	h.publish(Event{Kind: "room", Data: ev})
}

func (h *EventHub) PublishBrightness(ev domain.BrightnessEvent) {
	h.publish(Event{Kind: "brightness", Data: ev})
}

// Clients returns the number of connected subscribers.
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client goes away.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Printf("events: upgrade failed remote=%s err=%v", r.RemoteAddr, err)
		return
	}

	c := &eventClient{conn: conn, send: make(chan []byte, eventBuffer)}
	if !h.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	log.Printf("events: client connected remote=%s clients=%d", r.RemoteAddr, h.Clients())

	go h.writeLoop(c)
	h.readLoop(c)
}

// Close disconnects every client. Later connections are refused.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *EventHub) publish(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		log.Printf("events: encode failed kind=%s err=%v", ev.Kind, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			log.Printf("events: client slow, dropping kind=%s remote=%s", ev.Kind, c.conn.RemoteAddr())
		}
	}
}

func (h *EventHub) register(c *eventClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *EventHub) unregister(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readLoop discards client frames; it exists to notice disconnects and
// answer pings.
func (h *EventHub) readLoop(c *eventClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxClientFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("events: read failed remote=%s err=%v", c.conn.RemoteAddr(), err)
			}
			return
		}
	}
}

func (h *EventHub) writeLoop(c *eventClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
