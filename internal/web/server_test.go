package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talesmith-ai/talesmith/internal/config"
	"github.com/talesmith-ai/talesmith/internal/models"
	"github.com/talesmith-ai/talesmith/internal/session"
)

func newTestServer(t *testing.T, store *session.Storage) (*Server, *httptest.Server) {
	t.Helper()

	cfg := config.Default()
	registry := models.NewRegistry(nil, models.Options{DefaultModels: []string{"model-a", "model-b"}})
	broker := NewBroker(cfg, nil, registry, store)

	srv, err := NewServer("localhost:0", broker)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWebSocket)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	go srv.hub.Run()
	t.Cleanup(srv.hub.Stop)

	return srv, ts
}

func wsURL(ts *httptest.Server, token string) string {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	_, ts := newTestServer(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "wrong"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketModelListing(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, srv.authToken), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(&WebMessage{Type: MessageTypeGetModels}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply WebMessage
	require.NoError(t, conn.ReadJSON(&reply))

	assert.Equal(t, MessageTypeModels, reply.Type)
	assert.Equal(t, []string{"model-a", "model-b"}, reply.Models)
}

func TestWebSocketClearStartsNewSession(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, srv.authToken), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(&WebMessage{Type: MessageTypeClear}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply WebMessage
	require.NoError(t, conn.ReadJSON(&reply))

	assert.Equal(t, MessageTypeSession, reply.Type)
	assert.NotEmpty(t, reply.SessionID)
}

func TestWebSocketDeleteSession(t *testing.T) {
	store, err := session.NewStorage(t.TempDir())
	require.NoError(t, err)

	keep := session.New(20)
	drop := session.New(20)
	require.NoError(t, store.Save(keep))
	require.NoError(t, store.Save(drop))

	srv, ts := newTestServer(t, store)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, srv.authToken), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(&WebMessage{Type: MessageTypeDeleteSession, SessionID: drop.ID}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply WebMessage
	require.NoError(t, conn.ReadJSON(&reply))

	assert.Equal(t, MessageTypeSessions, reply.Type)
	assert.Equal(t, []string{keep.ID}, reply.Sessions)
}

func TestWebSocketSessionsWithoutStore(t *testing.T) {
	srv, ts := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, srv.authToken), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(&WebMessage{Type: MessageTypeGetSessions}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply WebMessage
	require.NoError(t, conn.ReadJSON(&reply))

	assert.Equal(t, MessageTypeError, reply.Type)
	assert.Contains(t, reply.Error, "persistence is disabled")
}
