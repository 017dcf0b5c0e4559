// Package capability implements capability patterns and the matching
// algorithm the router uses to authorize every envelope a participant
// sends. Matching and canonicalization are pure: no I/O, no shared state.
package capability

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// PatternValue is a recursive payload-pattern leaf: either a literal/prefix/
// negation string, or a nested object of further PatternValues.
type PatternValue struct {
	Scalar   string
	IsScalar bool
	Nested   map[string]PatternValue
}

// Pattern is a capability: a kind glob plus an optional recursive payload
// pattern.
type Pattern struct {
	Kind    string
	Payload map[string]PatternValue
	// HasPayload distinguishes "no payload field" (any payload passes) from
	// an explicitly empty payload object.
	HasPayload bool
}

// UnmarshalJSON parses the wire literal
// {kind: "<glob>", payload?: {<key>: <scalar|pattern>, ...}}.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind    string          `json:"kind"`
		Payload json.RawMessage `json:"payload,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Kind = raw.Kind
	if len(raw.Payload) == 0 {
		p.HasPayload = false
		p.Payload = nil
		return nil
	}
	p.HasPayload = true
	m, err := parsePatternMap(raw.Payload)
	if err != nil {
		return err
	}
	p.Payload = m
	return nil
}

// UnmarshalYAML parses the same pattern literal from the space descriptor.
// The node is decoded generically and funneled through UnmarshalJSON so
// both formats share one parser.
func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("capability: encode yaml pattern: %w", err)
	}
	return p.UnmarshalJSON(data)
}

// MarshalJSON emits the same literal shape UnmarshalJSON accepts.
func (p Pattern) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"kind": p.Kind}
	if p.HasPayload {
		out["payload"] = patternMapToInterface(p.Payload)
	}
	return json.Marshal(out)
}

func parsePatternMap(data json.RawMessage) (map[string]PatternValue, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	m := make(map[string]PatternValue, len(raw))
	for k, v := range raw {
		pv, err := parsePatternValue(v)
		if err != nil {
			return nil, err
		}
		m[k] = pv
	}
	return m, nil
}

func parsePatternValue(data json.RawMessage) (PatternValue, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return PatternValue{Scalar: s, IsScalar: true}, nil
	}
	nested, err := parsePatternMap(data)
	if err != nil {
		return PatternValue{}, err
	}
	return PatternValue{Nested: nested}, nil
}

func patternMapToInterface(m map[string]PatternValue) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, pv := range m {
		if pv.IsScalar {
			out[k] = pv.Scalar
		} else {
			out[k] = patternMapToInterface(pv.Nested)
		}
	}
	return out
}

// Canonical renders a Pattern as sorted-key JSON, used for dedup and
// revoke-by-pattern-equality comparisons.
func (p Pattern) Canonical() string {
	canon := canonicalPattern(p)
	data, _ := json.Marshal(canon)
	return string(data)
}

func canonicalPattern(p Pattern) map[string]interface{} {
	out := map[string]interface{}{"kind": p.Kind}
	if p.HasPayload {
		out["payload"] = canonicalPatternMap(p.Payload)
	}
	return out
}

func canonicalPatternMap(m map[string]PatternValue) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, pv := range m {
		if pv.IsScalar {
			out[k] = pv.Scalar
		} else {
			out[k] = canonicalPatternMap(pv.Nested)
		}
	}
	return out
}

// Equal reports whether two patterns are canonically identical.
func Equal(a, b Pattern) bool {
	return a.Canonical() == b.Canonical()
}

