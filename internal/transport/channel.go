// Package transport implements the uniform Channel contract over WebSocket
// and FIFO connections, each with a bounded outbound queue and a single
// writer goroutine per connection so sends are serialized per channel.
package transport

import "github.com/mew-run/gateway/pkg/protocol"

// Channel is the transport-agnostic handle the registry and router hold for
// a connected participant.
type Channel interface {
	// Send best-effort serializes and enqueues an envelope for delivery.
	// A full outbound queue closes the channel rather than blocking the
	// caller.
	Send(env protocol.Envelope) error

	// SendStreamFrame enqueues a raw, already-framed stream data frame.
	SendStreamFrame(raw []byte) error

	// Close terminates the channel and its underlying connection.
	Close() error

	// OnEnvelope registers the callback invoked for every inbound envelope.
	OnEnvelope(func(protocol.Envelope))

	// OnStreamFrame registers the callback invoked for every inbound raw
	// stream data frame: any frame body beginning with '#', on either
	// transport, is dispatched here without JSON decoding.
	OnStreamFrame(func(raw []byte))

	// OnDisconnect registers the callback invoked exactly once when the
	// channel's connection is lost or closed.
	OnDisconnect(func())

	// OnError registers the callback invoked for non-fatal channel errors
	// (a malformed inbound frame, for instance).
	OnError(func(error))
}
