package transport

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mew-run/gateway/internal/codec"
	"github.com/mew-run/gateway/pkg/protocol"
)

// Upgrader wraps gorilla/websocket.Upgrader with the Gateway's origin
// policy. The endpoint is consumed by co-located participant processes, not
// browsers, so the default policy accepts any origin.
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader builds an Upgrader with permissive origin checking suitable
// for a loopback-bound Gateway.
func NewUpgrader() *Upgrader {
	return &Upgrader{upgrader: websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}}
}

// Upgrade promotes an HTTP request to a WebSocket channel.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (Channel, error) {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: websocket upgrade: %w", err)
	}
	return newWebSocketChannel(conn), nil
}

// websocketChannel adapts a *websocket.Conn to the Channel contract. Stream
// data frames are forwarded without JSON parsing once the owner has been
// identified; this adapter itself is agnostic to stream
// ownership, it merely distinguishes '#'-prefixed text frames from envelope
// frames and lets the router decide what to do with them.
type websocketChannel struct {
	conn  *websocket.Conn
	queue *outboundQueue

	mu           sync.Mutex
	onEnvelope   func(protocol.Envelope)
	onStreamFrm  func([]byte)
	onDisconnect func()
	onError      func(error)

	disconnectOnce sync.Once
}

func newWebSocketChannel(conn *websocket.Conn) *websocketChannel {
	ch := &websocketChannel{conn: conn}
	// Overflow closes the channel off the sender's goroutine: Close stops
	// the queue and fires the disconnect callback, both of which would
	// deadlock against the caller currently inside enqueue.
	ch.queue = newOutboundQueue(defaultQueueDepth, func() { go ch.Close() })
	go ch.queue.run(ch.write, func(err error) { ch.fireError(err); ch.fireDisconnect() })
	go ch.readLoop()
	return ch
}

func (c *websocketChannel) write(frame []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *websocketChannel) Send(env protocol.Envelope) error {
	data, err := codec.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	c.queue.enqueue(data)
	return nil
}

func (c *websocketChannel) SendStreamFrame(raw []byte) error {
	c.queue.enqueue(raw)
	return nil
}

func (c *websocketChannel) Close() error {
	c.queue.stop()
	err := c.conn.Close()
	c.fireDisconnect()
	return err
}

func (c *websocketChannel) OnEnvelope(fn func(protocol.Envelope)) {
	c.mu.Lock()
	c.onEnvelope = fn
	c.mu.Unlock()
}

func (c *websocketChannel) OnStreamFrame(fn func([]byte)) {
	c.mu.Lock()
	c.onStreamFrm = fn
	c.mu.Unlock()
}

func (c *websocketChannel) OnDisconnect(fn func()) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

func (c *websocketChannel) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

func (c *websocketChannel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fireDisconnect()
			return
		}
		if codec.IsStreamFrame(data) {
			c.mu.Lock()
			fn := c.onStreamFrm
			c.mu.Unlock()
			if fn != nil {
				fn(data)
			}
			continue
		}
		env, err := codec.DecodeEnvelope(data)
		if err != nil {
			c.fireError(fmt.Errorf("transport: websocket decode: %w", err))
			continue
		}
		c.mu.Lock()
		fn := c.onEnvelope
		c.mu.Unlock()
		if fn != nil {
			fn(env)
		}
	}
}

func (c *websocketChannel) fireError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *websocketChannel) fireDisconnect() {
	c.disconnectOnce.Do(func() {
		c.mu.Lock()
		fn := c.onDisconnect
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}
