package realtime

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultReconnectDelay = 5 * time.Second

// Message is one inbound frame, fanned out untouched. Raw carries the whole
// frame so consumers decode the fields their type needs.
type Message struct {
	Type string
	Raw  json.RawMessage
}

type Listener func(Message)

type envelope struct {
	Type string `json:"type"`
}

// Channel maintains one duplex connection bound to (userID, accessToken).
// The token travels as a query parameter; the handshake cannot carry custom
// headers. An unexpected close schedules exactly one reconnect after a fixed
// delay, and attempts continue until Disconnect.
type Channel struct {
	// URL is the endpoint prefix, e.g. "ws://host/ws/collaboration".
	URL            string
	Dialer         *websocket.Dialer
	ReconnectDelay time.Duration
	Logger         *zap.Logger

	// writeMu serializes data frames; gorilla permits one writer at a time.
	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	listeners map[int]Listener
	nextID    int
	reconnect *time.Timer
	gen       int
	closed    bool
	userID    int64
	token     string
}

// Connect opens the connection for the given identity. It is a no-op while
// a connection is already up. A failed dial schedules a retry like an
// unexpected close would.
func (c *Channel) Connect(userID int64, accessToken string) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		c.logger().Debug("already connected")
		return nil
	}

	c.closed = false
	c.userID = userID
	c.token = accessToken
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.gen++
	gen := c.gen
	endpoint := c.endpoint(userID, accessToken)
	c.mu.Unlock()

	conn, resp, err := c.dialer().Dial(endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.scheduleReconnect(gen, err)
		return fmt.Errorf("dial realtime endpoint: %w", err)
	}

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	c.logger().Info("realtime connected", zap.Int64("user_id", userID))
	go c.readLoop(conn, gen)
	return nil
}

// Disconnect closes the connection and cancels any pending reconnect. After
// it returns no reconnect attempt will fire.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.closed = true
	c.gen++
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
		c.logger().Info("realtime disconnected")
	}
}

// Connected reports whether a connection is currently up.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send serializes and transmits v while the connection is open. Messages
// sent while disconnected are logged and lost; nothing is queued.
func (c *Channel) Send(v any) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.logger().Error("send while disconnected, message dropped")
		return
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(v)
	c.writeMu.Unlock()
	if err != nil {
		c.logger().Error("send failed", zap.Error(err))
	}
}

// AddListener registers a subscriber and returns its removal token.
func (c *Channel) AddListener(fn Listener) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listeners == nil {
		c.listeners = make(map[int]Listener)
	}
	c.nextID++
	c.listeners[c.nextID] = fn
	return c.nextID
}

func (c *Channel) RemoveListener(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
}

func (c *Channel) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger().Warn("malformed frame dropped", zap.Error(err))
			continue
		}
		c.fanOut(Message{Type: env.Type, Raw: json.RawMessage(data)})
	}
}

// fanOut delivers to a snapshot of the listener set in registration order,
// so a listener removing itself (or another) mid-delivery is safe.
func (c *Channel) fanOut(msg Message) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	snapshot := make([]Listener, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, c.listeners[id])
	}
	c.mu.Unlock()

	for _, fn := range snapshot {
		fn(msg)
	}
}

func (c *Channel) handleClose(gen int, cause error) {
	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	c.scheduleReconnect(gen, cause)
}

func (c *Channel) scheduleReconnect(gen int, cause error) {
	delay := c.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gen != gen || c.reconnect != nil {
		return
	}

	c.logger().Warn("realtime connection lost, reconnecting",
		zap.Duration("delay", delay), zap.Error(cause))
	c.reconnect = time.AfterFunc(delay, c.reconnectNow)
}

func (c *Channel) reconnectNow() {
	c.mu.Lock()
	c.reconnect = nil
	if c.closed || c.conn != nil {
		c.mu.Unlock()
		return
	}
	userID, token := c.userID, c.token
	c.mu.Unlock()

	if err := c.Connect(userID, token); err != nil {
		c.logger().Warn("reconnect attempt failed", zap.Error(err))
	}
}

func (c *Channel) endpoint(userID int64, accessToken string) string {
	base := strings.TrimRight(c.URL, "/")
	return fmt.Sprintf("%s/%d/?token=%s", base, userID, url.QueryEscape(accessToken))
}

func (c *Channel) dialer() *websocket.Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return websocket.DefaultDialer
}

func (c *Channel) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
