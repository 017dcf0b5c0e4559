package transport

import (
	"fmt"
	"sync"

	"github.com/mew-run/gateway/pkg/protocol"
)

// MemoryChannel is an in-process Channel used by gatewaycore's tests so
// envelope scenarios can be driven without sockets.
type MemoryChannel struct {
	name string

	mu           sync.Mutex
	onEnvelope   func(protocol.Envelope)
	onStreamFrm  func([]byte)
	onDisconnect func()
	onError      func(error)
	closed       bool

	Received       []protocol.Envelope
	ReceivedFrames [][]byte
}

// NewMemoryChannel builds a channel identified by name for diagnostics.
func NewMemoryChannel(name string) *MemoryChannel {
	return &MemoryChannel{name: name}
}

func (c *MemoryChannel) Send(env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("transport: channel %s is closed", c.name)
	}
	c.Received = append(c.Received, env)
	return nil
}

func (c *MemoryChannel) SendStreamFrame(raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("transport: channel %s is closed", c.name)
	}
	c.ReceivedFrames = append(c.ReceivedFrames, raw)
	return nil
}

func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	fn := c.onDisconnect
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	return nil
}

func (c *MemoryChannel) OnEnvelope(fn func(protocol.Envelope)) {
	c.mu.Lock()
	c.onEnvelope = fn
	c.mu.Unlock()
}

func (c *MemoryChannel) OnStreamFrame(fn func([]byte)) {
	c.mu.Lock()
	c.onStreamFrm = fn
	c.mu.Unlock()
}

func (c *MemoryChannel) OnDisconnect(fn func()) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

func (c *MemoryChannel) OnError(fn func(error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Deliver simulates the remote participant sending an envelope in.
func (c *MemoryChannel) Deliver(env protocol.Envelope) {
	c.mu.Lock()
	fn := c.onEnvelope
	c.mu.Unlock()
	if fn != nil {
		fn(env)
	}
}

// DeliverStreamFrame simulates the remote participant sending a raw stream
// data frame in.
func (c *MemoryChannel) DeliverStreamFrame(raw []byte) {
	c.mu.Lock()
	fn := c.onStreamFrm
	c.mu.Unlock()
	if fn != nil {
		fn(raw)
	}
}

// Last returns the most recently sent envelope, or the zero value if none.
func (c *MemoryChannel) Last() protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Received) == 0 {
		return protocol.Envelope{}
	}
	return c.Received[len(c.Received)-1]
}
