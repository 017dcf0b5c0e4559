// Package protocol defines the MEW wire-level envelope and the set of
// reserved, Gateway-interpreted envelope kinds. It has no dependencies on the
// rest of this module so that transports, tests, and external tooling can
// import it in isolation.
package protocol

// ProtocolVersion is the wire protocol tag this Gateway build speaks.
// An incoming envelope whose Protocol field is set and differs from this
// value is rejected with VALIDATION_ERROR. Envelopes that omit
// Protocol have it stamped with this value before fan-out.
const ProtocolVersion = "mew/v0.4"
