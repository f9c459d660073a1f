package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestBroadcastReachesClient(t *testing.T) {
	hub := NewHub(func() domain.BotStatus { return domain.BotStatus{Running: true} }, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)

	// The snapshot frame arrives first, then the broadcast.
	var first frame
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "bot_status", first.Type)

	hub.Broadcast("position_opened", map[string]string{"market_id": "m1"})

	var next frame
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "position_opened", next.Type)
}

func TestSubscriptionFiltersEvents(t *testing.T) {
	hub := NewHub(nil, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(subscribeMsg{Subscribe: []string{"position_closed"}}))
	time.Sleep(50 * time.Millisecond) // let the read pump apply the subscription

	hub.Broadcast("heartbeat", nil)
	hub.Broadcast("position_closed", nil)

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "position_closed", f.Type)
}

func TestConnectAfterHubStopped(t *testing.T) {
	hub := NewHub(nil, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	// The handler must close the connection instead of blocking on a hub
	// that will never accept the registration.
	conn := dial(t, srv)
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
