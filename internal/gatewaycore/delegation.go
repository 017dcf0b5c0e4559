package gatewaycore

import (
	"encoding/json"

	"github.com/mew-run/gateway/internal/capability"
	"github.com/mew-run/gateway/internal/registry"
	"github.com/mew-run/gateway/pkg/protocol"
)

// grantPayload is the {recipient, capabilities:[pattern,...], reason?}
// shape of a capability/grant envelope.
type grantPayload struct {
	Recipient    string               `json:"recipient"`
	Capabilities []capability.Pattern `json:"capabilities"`
	Reason       string               `json:"reason,omitempty"`
}

// revokePayload accepts either {recipient, grant_id} or
// {recipient, capabilities:[pattern,...]}.
type revokePayload struct {
	Recipient    string               `json:"recipient"`
	GrantID      string               `json:"grant_id,omitempty"`
	Capabilities []capability.Pattern `json:"capabilities,omitempty"`
}

// handleGrantLocked processes capability/grant: the granter must already be
// authorized to emit it (checked by the caller before dispatch), the
// patterns are stored keyed by the grant envelope's own id, and the
// recipient is sent grant-ack plus a refreshed welcome before the grant
// envelope itself is broadcast. Callers must hold g.mu.
func (g *GatewayCore) handleGrantLocked(granter *registry.Participant, env protocol.Envelope) bool {
	var req grantPayload
	if err := json.Unmarshal(env.Payload, &req); err != nil || req.Recipient == "" {
		g.sendToLocked(granter.ID, g.invalidRequest(env.ID, "capability/grant requires payload.recipient and payload.capabilities"))
		return false
	}

	recipient, ok := g.registry.Get(req.Recipient)
	if !ok {
		g.sendToLocked(granter.ID, g.invalidRequest(env.ID, "capability/grant: unknown recipient "+req.Recipient))
		return false
	}

	grantID := env.ID
	if recipient.RuntimeGrants == nil {
		recipient.RuntimeGrants = map[string][]capability.Pattern{}
	}
	recipient.RuntimeGrants[grantID] = req.Capabilities
	g.grants.Add(req.Recipient, grantID, req.Capabilities)
	g.registry.Put(recipient)

	ack := g.buildSystemEnvelope(protocol.KindCapabilityGrantAck, map[string]interface{}{
		"status":       "accepted",
		"grant_id":     grantID,
		"capabilities": req.Capabilities,
	})
	ack.CorrelationID = protocol.CorrelationIDs{env.ID}
	g.sendToLocked(req.Recipient, ack)
	g.sendWelcomeLocked(req.Recipient)
	return true
}

// handleRevokeLocked processes capability/revoke: by grant_id it removes
// that single record; by patterns it strips any canonically-equal pattern
// from every grant record the recipient holds, dropping empty records and
// recipients. Callers must hold g.mu.
func (g *GatewayCore) handleRevokeLocked(revoker *registry.Participant, env protocol.Envelope) bool {
	var req revokePayload
	if err := json.Unmarshal(env.Payload, &req); err != nil || req.Recipient == "" {
		g.sendToLocked(revoker.ID, g.invalidRequest(env.ID, "capability/revoke requires payload.recipient"))
		return false
	}

	if req.GrantID != "" {
		g.grants.RevokeByID(req.Recipient, req.GrantID)
	} else if len(req.Capabilities) > 0 {
		g.grants.RevokeByPatterns(req.Recipient, req.Capabilities)
	}

	if recipient, ok := g.registry.Get(req.Recipient); ok {
		recipient.RuntimeGrants = g.grants.ForRecipient(req.Recipient)
		g.registry.Put(recipient)
	}
	return true
}
