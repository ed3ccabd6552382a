package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jfmyers9/crate/internal/processor"
	"github.com/rs/zerolog"
)

const (
	writeWait = 2 * time.Second

	// sendBuffer is how many messages may queue for one client before it
	// is considered stalled and dropped.
	sendBuffer = 16
)

// Hub fans processor outcomes out to connected websocket clients. Each
// client has its own writer goroutine, so a slow client never holds up a
// broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*client
	logger  zerolog.Logger
}

type client struct {
	ws   *websocket.Conn
	send chan []byte
}

// NewHub creates an empty Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]*client),
		logger:  logger.With().Str("component", "hub").Logger(),
	}
}

// OutcomeMessage is the JSON form of a processor outcome sent to clients.
type OutcomeMessage struct {
	Type      string    `json:"type"`
	EventID   string    `json:"eventId"`
	TagID     string    `json:"tagId"`
	Source    string    `json:"source,omitempty"`
	State     string    `json:"state"`
	Artist    string    `json:"artist,omitempty"`
	Album     string    `json:"album,omitempty"`
	Submitted int       `json:"submitted"`
	Accepted  int       `json:"accepted"`
	Ignored   int       `json:"ignored"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Notify broadcasts out. It satisfies processor.Notifier.
func (h *Hub) Notify(out processor.Outcome) {
	msg := OutcomeMessage{
		Type:      "outcome",
		EventID:   out.EventID,
		TagID:     out.TagID,
		Source:    out.Source,
		State:     string(out.State),
		Artist:    out.Artist,
		Album:     out.Album,
		Submitted: out.Submitted,
		Accepted:  out.Accepted,
		Ignored:   out.Ignored,
		At:        out.At,
	}
	if out.Err != nil {
		msg.Error = out.Err.Error()
	}
	h.BroadcastJSON(msg)
}

// BroadcastJSON queues v for every client. Clients whose queue is full
// are dropped.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode broadcast")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ws, c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Warn().Str("client", ws.RemoteAddr().String()).Msg("Dropping stalled websocket client")
			h.removeLocked(ws)
			_ = ws.Close()
		}
	}
}

// Add registers ws, queues a welcome message and starts its writer.
func (h *Hub) Add(ws *websocket.Conn) {
	c := &client{ws: ws, send: make(chan []byte, sendBuffer)}
	c.send <- []byte(`{"type":"welcome"}`)

	h.mu.Lock()
	h.clients[ws] = c
	h.mu.Unlock()

	go h.writeLoop(c)
}

// writeLoop is the only writer of data frames to c.ws. It exits when the
// client is removed or a write fails.
func (h *Hub) writeLoop(c *client) {
	for msg := range c.send {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.Remove(c.ws)
			return
		}
	}
}

// Remove unregisters and closes ws.
func (h *Hub) Remove(ws *websocket.Conn) {
	h.mu.Lock()
	h.removeLocked(ws)
	h.mu.Unlock()
	_ = ws.Close()
}

func (h *Hub) removeLocked(ws *websocket.Conn) {
	if c, ok := h.clients[ws]; ok {
		delete(h.clients, ws)
		close(c.send)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients {
		h.removeLocked(ws)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = ws.Close()
	}
}
