package gatewaycore

import (
	"encoding/json"

	"github.com/mew-run/gateway/pkg/protocol"
)

// errorEnvelope builds a system/error envelope from "system:gateway"
// correlated to the offending envelope's id, so clients can associate the
// failure via correlation_id[0].
func (g *GatewayCore) errorEnvelope(correlatesWith string, payload map[string]interface{}) protocol.Envelope {
	data, _ := json.Marshal(payload)
	env := protocol.Envelope{
		Protocol:  g.ProtocolVersion,
		ID:        g.mintID(),
		Timestamp: g.timestamp(),
		From:      protocol.GatewaySender,
		Kind:      protocol.KindSystemError,
		Payload:   data,
	}
	if correlatesWith != "" {
		env.CorrelationID = protocol.CorrelationIDs{correlatesWith}
	}
	return env
}

func (g *GatewayCore) validationError(correlatesWith, message string) protocol.Envelope {
	return g.errorEnvelope(correlatesWith, map[string]interface{}{
		"code":    protocol.ErrCodeValidation,
		"message": message,
	})
}

func (g *GatewayCore) processingError(correlatesWith, message string) protocol.Envelope {
	return g.errorEnvelope(correlatesWith, map[string]interface{}{
		"code":    protocol.ErrCodeProcessing,
		"message": message,
	})
}

func (g *GatewayCore) capabilityViolation(correlatesWith, attemptedKind string, yourCapabilities interface{}) protocol.Envelope {
	return g.errorEnvelope(correlatesWith, map[string]interface{}{
		"error":             protocol.ErrCapabilityDenied,
		"attempted_kind":    attemptedKind,
		"your_capabilities": yourCapabilities,
	})
}

func (g *GatewayCore) invalidRequest(correlatesWith, message string) protocol.Envelope {
	return g.errorEnvelope(correlatesWith, map[string]interface{}{
		"error":   protocol.ErrCodeInvalidReq,
		"message": message,
	})
}

func (g *GatewayCore) authenticationFailed(message string) protocol.Envelope {
	return g.errorEnvelope("", map[string]interface{}{
		"message": message,
	})
}
