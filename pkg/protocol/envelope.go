package protocol

import (
	"encoding/json"
	"fmt"
)

// CorrelationIDs normalizes the envelope's correlation_id field, which on
// the wire may be a bare string, a JSON array of strings, or absent.
// Internally it is always a sequence.
type CorrelationIDs []string

// UnmarshalJSON accepts null, a bare string, or an array of strings.
func (c *CorrelationIDs) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = nil
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*c = nil
			return nil
		}
		*c = CorrelationIDs{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("correlation_id: expected string or array of strings: %w", err)
	}
	*c = many
	return nil
}

// MarshalJSON always emits a sequence; a present correlation_id is never a
// bare string on the way out.
func (c CorrelationIDs) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	return json.Marshal([]string(c))
}

// Envelope is the unit of communication inside a space.
//
// Payload is kept as json.RawMessage on the wire struct; callers that need
// structural access (the capability matcher, kind-specific validators) parse
// it once into a value.Value via Payload.
type Envelope struct {
	Protocol      string          `json:"protocol,omitempty"`
	ID            string          `json:"id,omitempty"`
	Timestamp     string          `json:"ts,omitempty"`
	From          string          `json:"from,omitempty"`
	To            []string        `json:"to,omitempty"`
	Kind          string          `json:"kind"`
	CorrelationID CorrelationIDs  `json:"correlation_id,omitempty"`
	Context       string          `json:"context,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Clone returns a shallow copy safe to mutate (stamping fields) without
// aliasing the sender's To/CorrelationID slices.
func (e Envelope) Clone() Envelope {
	clone := e
	if e.To != nil {
		clone.To = append([]string(nil), e.To...)
	}
	if e.CorrelationID != nil {
		clone.CorrelationID = append(CorrelationIDs(nil), e.CorrelationID...)
	}
	return clone
}

// IsValid reports whether every field required on a fanned-out envelope is
// present.
func (e Envelope) IsValid() bool {
	return e.Protocol != "" && e.ID != "" && e.Timestamp != "" && e.From != "" && e.Kind != ""
}
