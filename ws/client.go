package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	HeartbeatInterval = 30 * time.Second
	HandshakeTimeout  = 5 * time.Second
	closeWriteTimeout = time.Second
	writeTimeout      = 5 * time.Second
)

// WebSocketClient is a single websocket connection with a serialized writer
// and a keepalive loop. It does not reconnect: a dropped connection ends the
// subscription it carries.
type WebSocketClient struct {
	conn      *websocket.Conn
	url       string
	heartbeat time.Duration
	keepalive func() interface{}
	log       *zap.SugaredLogger

	writeMu   sync.Mutex
	stop      chan struct{}
	closeOnce sync.Once
}

func NewWebSocketClient(url string, log *zap.SugaredLogger) *WebSocketClient {
	return &WebSocketClient{
		url:       url,
		heartbeat: HeartbeatInterval,
		log:       log,
		stop:      make(chan struct{}),
	}
}

func (c *WebSocketClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.conn = conn
	return nil
}

// StartHeartbeat sends msg() every interval until Close.
func (c *WebSocketClient) StartHeartbeat(interval time.Duration, msg func() interface{}) {
	if interval > 0 {
		c.heartbeat = interval
	}
	c.keepalive = msg
	go c.runHeartbeat()
}

func (c *WebSocketClient) runHeartbeat() {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.SendJSON(c.keepalive()); err != nil {
				c.log.Warnw("Failed to send heartbeat", "error", err)
				return
			}
		}
	}
}

// ReadMessage blocks for the next frame. A zero deadline means none.
func (c *WebSocketClient) ReadMessage(deadline time.Time) ([]byte, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, message, err := c.conn.ReadMessage()
	return message, err
}

func (c *WebSocketClient) SendJSON(v interface{}) error {
	if c.conn == nil {
		return fmt.Errorf("websocket is not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Close stops the heartbeat, sends a close frame and closes the connection.
// Only the first call has any effect.
func (c *WebSocketClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		if c.conn == nil {
			return
		}

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeWriteTimeout))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}
