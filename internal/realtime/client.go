package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectBase = time.Second
	reconnectCap  = 30 * time.Second
)

// Client is a reconnecting consumer of the realtime channel. On every
// successful connect it re-sends its subscription; on failure it retries
// with exponential backoff, doubling from one second up to a thirty second
// cap. WakeUp cuts the current wait short, for callers that detect network
// recovery themselves.
type Client struct {
	url      string
	onFrame  func([]byte)
	wake     chan struct{}
	done     chan struct{}
	closeOne sync.Once

	mu       sync.Mutex
	conn     *websocket.Conn
	boardID  string
	userName string
}

// NewClient creates a client for the given ws:// or wss:// URL. onFrame is
// invoked for every frame received, including users_update.
func NewClient(url string, onFrame func([]byte)) *Client {
	return &Client{
		url:     url,
		onFrame: onFrame,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Subscribe sets the board subscription and starts the connection loop.
func (c *Client) Subscribe(ctx context.Context, boardID, userName string) {
	c.mu.Lock()
	c.boardID = boardID
	c.userName = userName
	c.mu.Unlock()
	go c.run(ctx)
}

// Send writes a frame on the current connection. Frames sent while
// disconnected are dropped; the board state is re-fetched over HTTP after
// reconnect, so queuing is not needed.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// WakeUp interrupts the current backoff wait and retries immediately.
func (c *Client) WakeUp() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Close stops the connection loop.
func (c *Client) Close() {
	c.closeOne.Do(func() { close(c.done) })
}

func (c *Client) run(ctx context.Context) {
	delay := reconnectBase
	for {
		if c.stopped(ctx) {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err == nil {
			delay = reconnectBase
			c.session(ctx, conn)
		}

		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-c.wake:
		case <-time.After(delay):
		}
		delay = nextDelay(delay)
	}
}

// session resubscribes and reads frames until the connection drops.
func (c *Client) session(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	boardID, userName := c.boardID, c.userName
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	sub, err := json.Marshal(Message{Type: "subscribe", BoardID: boardID, UserName: userName})
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return
	}

	for {
		if c.stopped(ctx) {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if c.onFrame != nil {
			c.onFrame(data)
		}
	}
}

func (c *Client) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectCap {
		d = reconnectCap
	}
	return d
}
