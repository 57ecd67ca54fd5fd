package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mradio/internal/metrics"
)

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsFrame struct {
	messageType int
	payload     []byte
}

type wsClient struct {
	hub  *wsHub
	conn *websocket.Conn
	send chan wsFrame
}

// wsHub is the station's event bus: JSON lifecycle events plus binary
// audio frames, fanned out to every connected client. New subscribers are
// replayed the last known stream buffer header so they can sync mid-song.
type wsHub struct {
	clients    map[*wsClient]bool
	broadcast  chan wsFrame
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	logger     *slog.Logger

	headerMu     sync.Mutex
	bufferHeader json.RawMessage
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan wsFrame, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(2*time.Second),
				)
				close(client.send)
				delete(h.clients, client)
			}
			metrics.WSClientsConnected.Set(0)
			h.logger.Debug("ws hub stopped, all clients disconnected")
			return
		case client := <-h.register:
			h.clients[client] = true
			metrics.WSClientsConnected.Set(float64(len(h.clients)))
			h.logger.Debug("ws client connected", slog.Int("total", len(h.clients)))
			if header := h.headerSnapshot(); header != nil {
				if payload, err := json.Marshal(wsMessage{Type: "bufferHeader", Data: header}); err == nil {
					select {
					case client.send <- wsFrame{messageType: websocket.TextMessage, payload: payload}:
					default:
					}
				}
			}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.WSClientsConnected.Set(float64(len(h.clients)))
				h.logger.Debug("ws client disconnected", slog.Int("total", len(h.clients)))
			}
		case frame := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					close(client.send)
					delete(h.clients, client)
					metrics.WSClientsConnected.Set(float64(len(h.clients)))
				}
			}
		}
	}
}

// Close signals the hub to stop and disconnect all clients.
func (h *wsHub) Close() {
	close(h.done)
}

// Broadcast sends a typed JSON event to all connected clients. A full
// broadcast channel drops the event rather than stalling playback.
func (h *wsHub) Broadcast(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}
	payload, err := json.Marshal(wsMessage{Type: msgType, Data: raw})
	if err != nil {
		h.logger.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- wsFrame{messageType: websocket.TextMessage, payload: payload}:
	default:
	}
}

// TrackChanged implements the engine's event publisher.
func (h *wsHub) TrackChanged(title, duration, requestedBy string) {
	h.Broadcast("trackChanged", map[string]string{
		"title":       title,
		"duration":    duration,
		"requestedBy": requestedBy,
	})
}

// Progress implements the engine's event publisher.
func (h *wsHub) Progress(title string, elapsedSeconds int) {
	h.Broadcast("progress", map[string]any{
		"title":   title,
		"elapsed": elapsedSeconds,
	})
}

// Name implements engine.ChunkSink.
func (h *wsHub) Name() string { return "events" }

// WriteChunk relays broadcast audio as binary frames.
func (h *wsHub) WriteChunk(chunk []byte) {
	payload := make([]byte, len(chunk))
	copy(payload, chunk)
	select {
	case h.broadcast <- wsFrame{messageType: websocket.BinaryMessage, payload: payload}:
	default:
	}
}

// SetBufferHeader stores the header replayed to new subscribers and
// rebroadcasts it to everyone connected now.
func (h *wsHub) SetBufferHeader(data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	h.headerMu.Lock()
	h.bufferHeader = raw
	h.headerMu.Unlock()
	h.Broadcast("bufferHeader", data)
}

func (h *wsHub) setRawBufferHeader(raw json.RawMessage) {
	h.headerMu.Lock()
	h.bufferHeader = raw
	h.headerMu.Unlock()
}

func (h *wsHub) headerSnapshot() json.RawMessage {
	h.headerMu.Lock()
	defer h.headerMu.Unlock()
	return h.bufferHeader
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(frame.messageType, frame.payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client messages: application-level pings are answered
// with pongs, and a client may reseed the shared bufferHeader.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "ping":
			if payload, err := json.Marshal(wsMessage{Type: "pong"}); err == nil {
				select {
				case c.send <- wsFrame{messageType: websocket.TextMessage, payload: payload}:
				default:
				}
			}
		case "bufferHeader":
			if len(msg.Data) > 0 {
				c.hub.setRawBufferHeader(msg.Data)
				if payload, err := json.Marshal(msg); err == nil {
					select {
					case c.hub.broadcast <- wsFrame{messageType: websocket.TextMessage, payload: payload}:
					default:
					}
				}
			}
		}
	}
}
