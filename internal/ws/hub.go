package ws

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/felman/modulos_backend/internal/viewer"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

type viewerMessage struct {
	key     string
	payload []byte
}

// ViewerHub fans viewer snapshots out to the websocket clients watching the
// same viewer key.
type ViewerHub struct {
	register   chan *viewerClient
	unregister chan *viewerClient
	broadcast  chan viewerMessage
	clients    map[string]map[*viewerClient]struct{}
	done       chan struct{}
	log        *zap.Logger
}

func NewViewerHub(log *zap.Logger) *ViewerHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &ViewerHub{
		register:   make(chan *viewerClient),
		unregister: make(chan *viewerClient),
		broadcast:  make(chan viewerMessage, 256),
		clients:    make(map[string]map[*viewerClient]struct{}),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *ViewerHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for key, set := range h.clients {
				for client := range set {
					h.drop(key, client)
				}
			}
			return
		case client := <-h.register:
			set, ok := h.clients[client.key]
			if !ok {
				set = make(map[*viewerClient]struct{})
				h.clients[client.key] = set
			}
			set[client] = struct{}{}
		case client := <-h.unregister:
			if set, ok := h.clients[client.key]; ok {
				if _, ok := set[client]; ok {
					h.drop(client.key, client)
				}
			}
		case msg := <-h.broadcast:
			for client := range h.clients[msg.key] {
				select {
				case client.send <- msg.payload:
				default:
					h.drop(msg.key, client)
				}
			}
		}
	}
}

func (h *ViewerHub) drop(key string, client *viewerClient) {
	set := h.clients[key]
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, key)
	}
	close(client.send)
	client.conn.Close()
}

// Broadcast queues snap for the clients of key. It never blocks; when the
// queue is full the snapshot is dropped, since a newer one will follow.
func (h *ViewerHub) Broadcast(key string, snap viewer.Snapshot) {
	if h == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		h.log.Error("ws: marshal snapshot", zap.String("key", key), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- viewerMessage{key: key, payload: data}:
	default:
		h.log.Warn("ws: broadcast queue full, snapshot dropped", zap.String("key", key))
	}
}

type viewerClient struct {
	hub  *ViewerHub
	conn *websocket.Conn
	send chan []byte
	key  string
}

func (c *viewerClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
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
			break
		}
	}
}

func (c *viewerClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
