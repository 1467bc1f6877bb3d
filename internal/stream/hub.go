// Package stream broadcasts visualization frames to websocket viewers.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/gbuffer-camera/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	// sendQueue is how many frames a client may lag behind before frames
	// are dropped for it.
	sendQueue = 4
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans PNG frames out to every connected viewer. Slow viewers drop
// frames instead of stalling the broadcaster. New viewers get the latest
// frame right away.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]bool
	latest  []byte

	log *zap.Logger
}

// NewHub returns a hub. Run must be called for it to deliver frames.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte),
		done:       make(chan struct{}),
		clients:    make(map[*client]bool),
		log:        logger.OrNop(log),
	}
}

// Run delivers frames until ctx is done, then disconnects every client.
// Run must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			latest := h.latest
			n := len(h.clients)
			h.mu.Unlock()
			if latest != nil {
				c.send <- latest
			}
			h.log.Info("viewer connected", zap.Int("total", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("viewer disconnected", zap.Int("total", n))

		case frame := <-h.broadcast:
			h.mu.Lock()
			h.latest = frame
			for c := range h.clients {
				select {
				case c.send <- frame:
				default:
					h.log.Debug("viewer lagging, frame dropped")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a PNG frame for every viewer. It returns false when ctx
// ends or the hub stopped first.
func (h *Hub) Broadcast(ctx context.Context, frame []byte) bool {
	select {
	case h.broadcast <- frame:
		return true
	case <-ctx.Done():
		return false
	case <-h.done:
		return false
	}
}

// Latest returns the last broadcast frame, or nil.
func (h *Hub) Latest() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// ClientCount returns how many viewers are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// serve registers conn and pumps frames to it until either side closes.
func (h *Hub) serve(conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, sendQueue)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards viewer messages and notices disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("viewer read failed", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				h.log.Debug("viewer write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
