package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felman/modulos_backend/internal/viewer"
)

func dial(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpURL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) viewer.Snapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var snap viewer.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap
}

func TestViewerHubStreamsSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewViewerHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		_ = hub.Serve(w, r, key, viewer.Snapshot{ModuleID: "pedidos", State: viewer.StateIdle})
	}))
	defer srv.Close()

	a := dial(t, srv.URL+"?key=u1%7Cpedidos")
	b := dial(t, srv.URL+"?key=u2%7Cpedidos")

	assert.Equal(t, viewer.StateIdle, readSnapshot(t, a).State)
	assert.Equal(t, viewer.StateIdle, readSnapshot(t, b).State)

	hub.Broadcast("u1|pedidos", viewer.Snapshot{ModuleID: "pedidos", State: viewer.StateDisplaying, Generation: 1})
	got := readSnapshot(t, a)
	assert.Equal(t, viewer.StateDisplaying, got.State)
	assert.Equal(t, uint64(1), got.Generation)

	// b watches another key and must not receive it
	b.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := b.ReadMessage()
	assert.Error(t, err)
}

func TestViewerHubStopDisconnects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewViewerHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, "k", viewer.Snapshot{State: viewer.StateIdle})
	}))
	defer srv.Close()

	conn := dial(t, srv.URL)
	readSnapshot(t, conn)

	cancel()
	<-stopped
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	hub.Broadcast("k", viewer.Snapshot{})
}
