package gatewaycore

import (
	"encoding/json"

	"github.com/mew-run/gateway/internal/registry"
	"github.com/mew-run/gateway/pkg/protocol"
)

// streamRequestPayload is the {direction?} shape of a stream/request
// envelope.
type streamRequestPayload struct {
	Direction string `json:"direction,omitempty"`
}

// streamClosePayload is the {stream_id} shape of a stream/close envelope.
type streamClosePayload struct {
	StreamID string `json:"stream_id"`
}

// handleStreamRequestLocked assigns a fresh stream id, records ownership,
// and broadcasts stream/open correlated to the request before the request
// envelope itself is broadcast by the caller, so every participant sees the
// open before any data frame with that id. Callers must hold g.mu.
func (g *GatewayCore) handleStreamRequestLocked(sender *registry.Participant, env protocol.Envelope) bool {
	var req streamRequestPayload
	_ = json.Unmarshal(env.Payload, &req)

	streamID := g.streams.Allocate(env.ID, sender.ID, req.Direction, g.now())

	open := g.buildSystemEnvelope(protocol.KindStreamOpen, map[string]interface{}{
		"stream_id": streamID,
		"encoding":  "text",
	})
	open.CorrelationID = protocol.CorrelationIDs{env.ID}
	g.broadcastLocked(open)
	return true
}

// handleStreamCloseLocked removes the stream record so subsequent frames
// with that id are dropped; the close envelope itself is forwarded as usual
// by the caller. Callers must hold g.mu.
func (g *GatewayCore) handleStreamCloseLocked(sender *registry.Participant, env protocol.Envelope) bool {
	var req streamClosePayload
	if err := json.Unmarshal(env.Payload, &req); err != nil || req.StreamID == "" {
		g.sendToLocked(sender.ID, g.invalidRequest(env.ID, "stream/close requires payload.stream_id"))
		return false
	}
	g.streams.Close(req.StreamID)
	return true
}
