package gatewaycore

import (
	"crypto/subtle"
	"encoding/json"

	"github.com/mew-run/gateway/internal/capability"
	"github.com/mew-run/gateway/internal/registry"
	"github.com/mew-run/gateway/internal/value"
	"github.com/mew-run/gateway/pkg/protocol"
)

// joinRequest is the data a join envelope carries. Both the canonical
// `kind: system/join` form and the legacy `payload.type: "join"` form are
// accepted; participantId/space/token live in the payload.
type joinRequest struct {
	ParticipantID string
	Space         string
	Token         string
}

func isJoinEnvelope(env protocol.Envelope) bool {
	if env.Kind == protocol.KindSystemJoin {
		return true
	}
	payload := value.MustParse(env.Payload)
	if t, ok := payload.Get("type"); ok {
		if s, ok := t.AsString(); ok && s == "join" {
			return true
		}
	}
	return false
}

func parseJoinRequest(env protocol.Envelope) joinRequest {
	payload := value.MustParse(env.Payload)
	var req joinRequest
	if v, ok := payload.Get("participantId"); ok {
		req.ParticipantID, _ = v.AsString()
	}
	if v, ok := payload.Get("space"); ok {
		req.Space, _ = v.AsString()
	}
	if v, ok := payload.Get("token"); ok {
		req.Token, _ = v.AsString()
	}
	return req
}

// handleJoin runs the first-envelope authentication handshake: space check,
// constant-time token compare, registry install, welcome, presence. It is
// called with g.mu held.
func (g *GatewayCore) handleJoin(conn *connState, env protocol.Envelope) {
	req := parseJoinRequest(env)

	if req.Space != "" && req.Space != g.SpaceID {
		conn.channel.Send(g.authenticationFailed("Invalid space for this gateway"))
		conn.channel.Close()
		return
	}

	expected, err := g.resolveToken(req.ParticipantID)
	if err != nil || expected == "" || req.Token == "" ||
		subtle.ConstantTimeCompare([]byte(req.Token), []byte(expected)) != 1 {
		conn.channel.Send(g.authenticationFailed("Authentication failed"))
		conn.channel.Close()
		return
	}

	// Duplicate join is last-writer-wins: purge the old channel's state,
	// then install the new one. The close runs off this goroutine: channel
	// implementations fire their disconnect callback from Close, and that
	// callback re-enters g.mu.
	if existing, ok := g.registry.Get(req.ParticipantID); ok {
		old := existing.Channel
		g.cleanupParticipantLocked(req.ParticipantID)
		go old.Close()
	}

	static := g.staticCapabilitiesFor(req.ParticipantID)
	participant := &registry.Participant{
		ID:                 req.ParticipantID,
		Channel:            conn.channel,
		Token:              expected,
		StaticCapabilities: static,
		RuntimeGrants:      map[string][]capability.Pattern{},
		State:              registry.StateJoined,
	}
	g.registry.Put(participant)
	conn.bind(req.ParticipantID)

	g.sendWelcomeLocked(req.ParticipantID)
	g.broadcastPresenceLocked(req.ParticipantID, "join", except(req.ParticipantID))
}

func (g *GatewayCore) resolveToken(participantID string) (string, error) {
	if g.tokens == nil {
		return "", nil
	}
	return g.tokens(participantID)
}

func (g *GatewayCore) staticCapabilitiesFor(participantID string) []capability.Pattern {
	if g.staticCapabilities == nil {
		return nil
	}
	return g.staticCapabilities(participantID)
}

// sendWelcomeLocked sends system/welcome to the joiner: {you:{id,
// capabilities}, participants:[{id, capabilities}, ...]} for every other
// joined participant. Called with g.mu held.
func (g *GatewayCore) sendWelcomeLocked(participantID string) {
	self, ok := g.registry.Get(participantID)
	if !ok {
		return
	}

	type summary struct {
		ID           string               `json:"id"`
		Capabilities []capability.Pattern `json:"capabilities"`
	}
	toSummary := func(p *registry.Participant) summary {
		return summary{ID: p.ID, Capabilities: p.EffectiveCapabilities()}
	}

	others := make([]summary, 0, g.registry.Count())
	for _, p := range g.registry.All() {
		if p.ID == participantID {
			continue
		}
		others = append(others, toSummary(p))
	}

	payload := map[string]interface{}{
		"you":          toSummary(self),
		"participants": others,
	}
	env := g.buildSystemEnvelope(protocol.KindSystemWelcome, payload)
	g.sendToLocked(participantID, env)
}

// except returns a predicate excluding the given id, used when broadcasting
// presence to "everyone else".
func except(id string) func(string) bool {
	return func(other string) bool { return other != id }
}

// broadcastPresenceLocked sends system/presence to every joined participant
// matching filter. Called with g.mu held.
func (g *GatewayCore) broadcastPresenceLocked(participantID, event string, filter func(string) bool) {
	payload := map[string]interface{}{
		"event":       event,
		"participant": map[string]interface{}{"id": participantID},
	}
	if event == "join" {
		if p, ok := g.registry.Get(participantID); ok {
			payload["participant"] = map[string]interface{}{"id": participantID, "capabilities": p.EffectiveCapabilities()}
		}
	}
	env := g.buildSystemEnvelope(protocol.KindSystemPresence, payload)
	for _, p := range g.registry.All() {
		if filter != nil && !filter(p.ID) {
			continue
		}
		g.sendToLocked(p.ID, env)
	}
}

func (g *GatewayCore) buildSystemEnvelope(kind string, payload map[string]interface{}) protocol.Envelope {
	data, _ := json.Marshal(payload)
	return protocol.Envelope{
		Protocol:  g.ProtocolVersion,
		ID:        g.mintID(),
		Timestamp: g.timestamp(),
		From:      protocol.GatewaySender,
		Kind:      kind,
		Payload:   data,
	}
}

// handleDisconnect tears down a joined channel: registry removal, grant and
// stream purge, leave presence.
func (c *connState) handleDisconnect() {
	id, joined := c.boundID()
	if !joined {
		return
	}
	g := c.core
	g.mu.Lock()
	defer g.mu.Unlock()
	// A superseded channel (last-writer-wins re-join) owns no registry
	// state anymore; only the channel currently bound to the id cleans up.
	p, ok := g.registry.Get(id)
	if !ok || p.Channel != c.channel {
		return
	}
	g.cleanupParticipantLocked(id)
	g.broadcastPresenceLocked(id, "leave", nil)
}

// cleanupParticipantLocked removes a participant's registry entry, purges
// their runtime grants and owned streams. Called with g.mu held.
func (g *GatewayCore) cleanupParticipantLocked(participantID string) {
	g.registry.Remove(participantID)
	g.grants.PurgeRecipient(participantID)
	abandoned := g.streams.PurgeOwner(participantID)
	for _, streamID := range abandoned {
		env := g.buildSystemEnvelope(protocol.KindStreamClose, map[string]interface{}{"stream_id": streamID})
		g.broadcastLocked(env)
	}
}
