package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebSocketClientRoundTrip(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		received <- msg
		conn.WriteJSON(map[string]string{"type": "KEEPALIVE"})
		conn.ReadMessage()
	}))
	defer srv.Close()

	client := NewWebSocketClient("ws"+strings.TrimPrefix(srv.URL, "http"), zap.NewNop().Sugar())
	require.NoError(t, client.Connect(context.Background()))

	require.NoError(t, client.SendJSON(map[string]string{"type": "SETUP"}))
	select {
	case msg := <-received:
		assert.Equal(t, "SETUP", msg["type"])
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the message")
	}

	reply, err := client.ReadMessage(time.Now().Add(2 * time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"KEEPALIVE"}`, string(reply))

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}

func TestWebSocketClientSendBeforeConnect(t *testing.T) {
	client := NewWebSocketClient("ws://unused.invalid", zap.NewNop().Sugar())
	assert.Error(t, client.SendJSON(map[string]string{"type": "SETUP"}))
	assert.NoError(t, client.Close())
}
