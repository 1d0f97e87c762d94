package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"greeks_ingest/feed"
)

type staticToken struct {
	url   string
	token string
	err   error
}

func (s staticToken) StreamerToken(ctx context.Context) (string, string, error) {
	return s.url, s.token, s.err
}

// fakeDXLink answers the handshake and pushes feedData once the
// subscription arrives.
type fakeDXLink struct {
	token     string
	feedData  string
	closeFeed bool
	removed   atomic.Bool
}

func (f *fakeDXLink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg["type"] {
		case "SETUP":
			conn.WriteJSON(map[string]interface{}{"type": "SETUP", "channel": 0, "version": "1.0"})
			conn.WriteJSON(map[string]interface{}{"type": "AUTH_STATE", "channel": 0, "state": "UNAUTHORIZED"})
		case "AUTH":
			if msg["token"] != f.token {
				conn.WriteJSON(map[string]interface{}{"type": "ERROR", "channel": 0, "error": "UNAUTHORIZED", "message": "bad token"})
				continue
			}
			conn.WriteJSON(map[string]interface{}{"type": "AUTH_STATE", "channel": 0, "state": "AUTHORIZED"})
		case "CHANNEL_REQUEST":
			conn.WriteJSON(map[string]interface{}{"type": "CHANNEL_OPENED", "channel": msg["channel"], "service": "FEED"})
		case "FEED_SETUP":
			conn.WriteJSON(map[string]interface{}{
				"type":        "FEED_CONFIG",
				"channel":     1,
				"dataFormat":  "COMPACT",
				"eventFields": msg["acceptEventFields"],
			})
		case "FEED_SUBSCRIPTION":
			if _, ok := msg["remove"]; ok {
				f.removed.Store(true)
				continue
			}
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"FEED_DATA","channel":1,"data":`+f.feedData+`}`))
			if f.closeFeed {
				conn.WriteJSON(map[string]interface{}{"type": "CHANNEL_CLOSED", "channel": 1})
			}
		}
	}
}

func startFake(t *testing.T, fake *fakeDXLink) string {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

const twoGreeks = `["Greeks",[
	"Greeks",".TSLA250221C550",0,101,1737161994421,1,14.2,0.5,0.85,0.004,-0.35,0.12,0.88,
	"Greeks",".TSLA250221C560",0,102,1737161994422,2,10.1,0.5,0.19,0.004,-0.30,0.11,0.80
]]`

func TestDXLinkFeed_ReceivesEvents(t *testing.T) {
	fake := &fakeDXLink{token: "tok", feedData: twoGreeks}
	url := startFake(t, fake)

	f := NewDXLinkFeed(staticToken{url: url, token: "tok"}, Config{IdleTimeout: 200 * time.Millisecond}, zap.NewNop().Sugar())
	ctx := context.Background()

	sub, err := f.Open(ctx, feed.KindGreeks, []string{".TSLA250221C550", ".TSLA250221C560"})
	require.NoError(t, err)

	first, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, ".TSLA250221C550", first.Symbol())
	assert.Equal(t, int64(101), first.Greeks.EventIndex)
	assert.Equal(t, 0.85, first.Greeks.Delta)

	second, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, ".TSLA250221C560", second.Symbol())

	_, err = sub.Next(ctx)
	assert.True(t, errors.Is(err, feed.ErrIdleTimeout))

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())

	_, err = sub.Next(ctx)
	assert.True(t, errors.Is(err, feed.ErrClosed))

	assert.Eventually(t, fake.removed.Load, time.Second, 10*time.Millisecond)
}

func TestDXLinkFeed_ChannelClosedEndsStream(t *testing.T) {
	fake := &fakeDXLink{token: "tok", feedData: twoGreeks, closeFeed: true}
	url := startFake(t, fake)

	f := NewDXLinkFeed(staticToken{url: url, token: "tok"}, Config{IdleTimeout: time.Second}, zap.NewNop().Sugar())
	ctx := context.Background()

	sub, err := f.Open(ctx, feed.KindGreeks, []string{".TSLA250221C550"})
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 2; i++ {
		_, err := sub.Next(ctx)
		require.NoError(t, err)
	}

	_, err = sub.Next(ctx)
	assert.True(t, errors.Is(err, feed.ErrEndOfStream))
}

func TestDXLinkFeed_AuthRejected(t *testing.T) {
	url := startFake(t, &fakeDXLink{token: "tok", feedData: twoGreeks})

	f := NewDXLinkFeed(staticToken{url: url, token: "wrong"}, Config{HandshakeTimeout: time.Second}, zap.NewNop().Sugar())

	_, err := f.Open(context.Background(), feed.KindGreeks, []string{".TSLA250221C550"})
	require.Error(t, err)

	var subErr *feed.SubscriptionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, "handshake", subErr.Op)
}

func TestDXLinkFeed_TokenFailure(t *testing.T) {
	f := NewDXLinkFeed(staticToken{err: errors.New("login rejected")}, Config{}, zap.NewNop().Sugar())

	_, err := f.Open(context.Background(), feed.KindQuote, []string{"SPY"})

	var subErr *feed.SubscriptionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, "auth", subErr.Op)
}

func TestDXLinkFeed_NoSymbols(t *testing.T) {
	f := NewDXLinkFeed(staticToken{}, Config{}, zap.NewNop().Sugar())

	_, err := f.Open(context.Background(), feed.KindQuote, nil)

	var subErr *feed.SubscriptionError
	assert.True(t, errors.As(err, &subErr))
}
