package ws

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/felman/modulos_backend/internal/viewer"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins; rely on JWT auth.
		return true
	},
}

var ErrHubStopped = errors.New("realtime hub stopped")

// Serve upgrades the request and streams the snapshots of key, starting with
// initial. It returns once the client disconnects.
func (h *ViewerHub) Serve(w http.ResponseWriter, r *http.Request, key string, initial viewer.Snapshot) error {
	first, err := json.Marshal(initial)
	if err != nil {
		return errors.Wrap(err, "marshal initial snapshot")
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "websocket upgrade")
	}

	client := &viewerClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		key:  key,
	}
	client.send <- first
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return ErrHubStopped
	}

	go client.writePump()
	client.readPump()
	return nil
}
