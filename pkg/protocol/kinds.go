package protocol

// Reserved envelope kinds. The Gateway interprets these specially (join
// handshake, capability delegation, stream brokering, system bookkeeping);
// every other kind is accepted, capability-checked, and fanned out verbatim.
const (
	KindSystemJoin      = "system/join"
	KindSystemWelcome   = "system/welcome"
	KindSystemPresence  = "system/presence"
	KindSystemRegister  = "system/register"
	KindSystemError     = "system/error"
	KindSystemHeartbeat = "system/heartbeat"

	KindCapabilityGrant    = "capability/grant"
	KindCapabilityRevoke   = "capability/revoke"
	KindCapabilityGrantAck = "capability/grant-ack"

	KindStreamRequest = "stream/request"
	KindStreamOpen    = "stream/open"
	KindStreamClose   = "stream/close"

	// Baseline kinds every participant may always emit, regardless of its
	// configured capability patterns.
	KindMCPResponse = "mcp/response"
)

// GatewaySender is the synthetic "from" identity used on every envelope the
// Gateway itself originates (system/error, system/welcome, system/presence,
// capability/grant-ack, stream/open).
const GatewaySender = "system:gateway"

// Error codes/taxonomy surfaced in payload.code or payload.error.
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeProcessing   = "PROCESSING_ERROR"
	ErrCodeInvalidReq   = "invalid_request"
	ErrCapabilityDenied = "capability_violation"
)
