package capability

import (
	"strings"

	"github.com/mew-run/gateway/internal/value"
)

// KindMatches evaluates the kind glob: "*" matches anything, a "prefix/*"
// glob matches the prefix itself or anything nested under it, otherwise
// exact string equality.
func KindMatches(patternKind, kind string) bool {
	if patternKind == "*" {
		return true
	}
	if strings.HasSuffix(patternKind, "/*") {
		prefix := strings.TrimSuffix(patternKind, "/*")
		return kind == prefix || strings.HasPrefix(kind, prefix+"/")
	}
	return patternKind == kind
}

// Matches evaluates a single pattern against a concrete (kind, payload) pair.
func Matches(pattern Pattern, kind string, payload value.Value) bool {
	if !KindMatches(pattern.Kind, kind) {
		return false
	}
	if !pattern.HasPayload {
		return true
	}
	return payloadMatch(pattern.Payload, payload)
}

// payloadMatch walks the pattern's keys and requires each to match the
// corresponding key in the envelope payload; a key absent from the envelope
// payload always fails, even under a negation pattern.
func payloadMatch(pattern map[string]PatternValue, payload value.Value) bool {
	for key, pv := range pattern {
		envVal, ok := payload.Get(key)
		if !ok {
			return false
		}
		if !matchValue(pv, envVal) {
			return false
		}
	}
	return true
}

func matchValue(pv PatternValue, envVal value.Value) bool {
	if !pv.IsScalar {
		return payloadMatch(pv.Nested, envVal)
	}

	s := pv.Scalar
	switch {
	case strings.HasPrefix(s, "!"):
		want := s[1:]
		got, ok := envVal.AsString()
		if !ok {
			return true
		}
		return got != want
	case strings.HasSuffix(s, "*"):
		prefix := strings.TrimSuffix(s, "*")
		got, ok := envVal.AsString()
		if !ok {
			return false
		}
		return strings.HasPrefix(got, prefix)
	default:
		got, ok := envVal.AsString()
		if !ok {
			return false
		}
		return got == s
	}
}

// AnyMatches reports whether any pattern in the set authorizes
// (kind, payload). The match is existential: the first matching pattern
// authorizes the send, and order within the set is immaterial.
func AnyMatches(patterns []Pattern, kind string, payload value.Value) bool {
	for _, p := range patterns {
		if Matches(p, kind, payload) {
			return true
		}
	}
	return false
}
