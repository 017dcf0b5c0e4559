package gatewaycore

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mew-run/gateway/internal/capability"
	"github.com/mew-run/gateway/internal/codec"
	"github.com/mew-run/gateway/internal/registry"
	"github.com/mew-run/gateway/internal/telemetry"
	"github.com/mew-run/gateway/internal/value"
	"github.com/mew-run/gateway/pkg/protocol"
)

// handleEnvelope is the single entry point every transport adapter's
// OnEnvelope callback lands on. It dispatches on the channel's join state
// first, then runs every accepted
// envelope through validation, authorization, kind-specific side effects and
// fan-out while holding the core's single state mutex, so each envelope's
// mutation and its fan-out appear atomic with respect to every other
// envelope.
func (c *connState) handleEnvelope(env protocol.Envelope) {
	g := c.core
	g.mu.Lock()
	defer g.mu.Unlock()

	// An unexpected panic while handling one envelope must not take down
	// the rest of the space: the sender gets a PROCESSING_ERROR and the
	// gateway keeps serving.
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("panic handling envelope", "kind", env.Kind, "recovered", r)
			if id, joined := c.boundID(); joined {
				g.sendToLocked(id, g.processingError(env.ID, "internal error"))
			}
		}
	}()

	id, joined := c.boundID()

	if isJoinEnvelope(env) {
		if joined {
			// Already joined; ignore a stray join envelope.
			return
		}
		g.handleJoin(c, env)
		return
	}

	if !joined {
		// No envelope other than join is accepted before the handshake
		// completes; silently drop rather than guessing at a sender id.
		return
	}

	g.routeLocked(id, env)
}

// handleStreamFrame forwards a raw "#sid#..." frame to every participant,
// but only while its stream is registered and the sender is the recorded
// owner; anything else is logged and dropped.
func (c *connState) handleStreamFrame(raw []byte) {
	g := c.core
	g.mu.Lock()
	defer g.mu.Unlock()

	id, joined := c.boundID()
	if !joined {
		return
	}

	streamID, _, err := codec.DecodeStreamFrame(raw)
	if err != nil {
		g.log.Warn("malformed stream frame", "from", id, "error", err)
		return
	}
	rec, ok := g.streams.Get(streamID)
	if !ok || rec.Owner != id {
		g.log.Debug("dropping stream frame for unknown/foreign stream", "stream_id", streamID, "from", id)
		return
	}
	g.broadcastStreamFrameLocked(raw)
}

func (g *GatewayCore) broadcastStreamFrameLocked(raw []byte) {
	for _, p := range g.registry.All() {
		if err := p.Channel.SendStreamFrame(raw); err != nil {
			g.log.Warn("stream frame broadcast failed", "participant", p.ID, "error", err)
		}
	}
}

// routeLocked takes an envelope from an already-joined sender through
// validation, authorization, kind-specific side effects, stamping and
// fan-out. Callers must hold g.mu.
func (g *GatewayCore) routeLocked(senderID string, env protocol.Envelope) {
	_, span := telemetry.Tracer().Start(context.Background(), "gateway.envelope",
		trace.WithAttributes(attribute.String("kind", env.Kind), attribute.String("from", senderID)))
	defer span.End()

	sender, ok := g.registry.Get(senderID)
	if !ok {
		return
	}

	if err := g.validateProtocolVersion(env); err != nil {
		g.sendToLocked(senderID, g.validationError(env.ID, err.Error()))
		return
	}
	if msg, ok := validateKindPayload(env); !ok {
		g.sendToLocked(senderID, g.validationError(env.ID, msg))
		return
	}

	// system/register is folded into the sender's static capabilities
	// before authorization so the newly-registered kinds take effect
	// immediately.
	if env.Kind == protocol.KindSystemRegister {
		g.handleRegisterLocked(sender, env)
		return
	}

	if env.Kind != protocol.KindSystemHeartbeat {
		payload := value.MustParse(env.Payload)
		effective := sender.EffectiveCapabilities()
		if !capability.AnyMatches(effective, env.Kind, payload) {
			g.sendToLocked(senderID, g.capabilityViolation(env.ID, env.Kind, effective))
			return
		}
	}

	// Stamp before the side-effect handlers run: capability/grant keys its
	// grant record by the envelope id and stream/open correlates to the
	// request id, so a client-omitted id must be minted first.
	env = g.stampLocked(env, senderID)

	ok = true
	switch env.Kind {
	case protocol.KindCapabilityGrant:
		ok = g.handleGrantLocked(sender, env)
	case protocol.KindCapabilityRevoke:
		ok = g.handleRevokeLocked(sender, env)
	case protocol.KindStreamRequest:
		ok = g.handleStreamRequestLocked(sender, env)
	case protocol.KindStreamClose:
		ok = g.handleStreamCloseLocked(sender, env)
	}
	if !ok {
		return
	}

	g.broadcastLocked(env)
}

// validateKindPayload runs the kind-specific required-field checks: chat
// needs payload.text, mcp/request needs payload.method.
func validateKindPayload(env protocol.Envelope) (message string, ok bool) {
	payload := value.MustParse(env.Payload)
	switch env.Kind {
	case "chat":
		if _, present := stringField(payload, "text"); !present {
			return "chat requires payload.text", false
		}
	case "mcp/request":
		if _, present := stringField(payload, "method"); !present {
			return "mcp/request requires payload.method", false
		}
	}
	return "", true
}

func stringField(payload value.Value, key string) (string, bool) {
	v, ok := payload.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.AsString()
	return s, ok
}

// handleRegisterLocked requires payload.capabilities to be a sequence,
// merges it (deduplicated) into the sender's static capabilities, and
// broadcasts system/presence{event:"update"} to everyone else.
func (g *GatewayCore) handleRegisterLocked(sender *registry.Participant, env protocol.Envelope) {
	payload := value.MustParse(env.Payload)
	raw, ok := payload.Get("capabilities")
	if !ok {
		g.sendToLocked(sender.ID, g.invalidRequest(env.ID, "system/register requires payload.capabilities"))
		return
	}
	items, ok := raw.AsArray()
	if !ok {
		g.sendToLocked(sender.ID, g.invalidRequest(env.ID, "payload.capabilities must be a sequence"))
		return
	}

	var patterns []capability.Pattern
	for _, item := range items {
		p, err := patternFromValue(item)
		if err != nil {
			g.sendToLocked(sender.ID, g.invalidRequest(env.ID, "invalid capability pattern: "+err.Error()))
			return
		}
		patterns = append(patterns, p)
	}

	sender.StaticCapabilities = capability.Merge(sender.StaticCapabilities, patterns)
	g.registry.Put(sender)

	g.broadcastPresenceUpdateLocked(sender.ID)
}

func patternFromValue(v value.Value) (capability.Pattern, error) {
	data := []byte(v.Canonical())
	var p capability.Pattern
	err := json.Unmarshal(data, &p)
	return p, err
}

func (g *GatewayCore) broadcastPresenceUpdateLocked(participantID string) {
	p, ok := g.registry.Get(participantID)
	if !ok {
		return
	}
	payload := map[string]interface{}{
		"event":       "update",
		"participant": map[string]interface{}{"id": participantID, "capabilities": p.EffectiveCapabilities()},
	}
	env := g.buildSystemEnvelope(protocol.KindSystemPresence, payload)
	for _, other := range g.registry.All() {
		if other.ID == participantID {
			continue
		}
		g.sendToLocked(other.ID, env)
	}
}
