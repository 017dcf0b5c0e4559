package protocol

import (
	"encoding/json"
	"testing"
)

func TestCorrelationIDsAcceptScalarAndSequence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"scalar", `{"kind":"chat","correlation_id":"env-1"}`, []string{"env-1"}},
		{"sequence", `{"kind":"chat","correlation_id":["env-1","env-2"]}`, []string{"env-1", "env-2"}},
		{"absent", `{"kind":"chat"}`, nil},
		{"null", `{"kind":"chat","correlation_id":null}`, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var env Envelope
			if err := json.Unmarshal([]byte(c.in), &env); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(env.CorrelationID) != len(c.want) {
				t.Fatalf("correlation_id = %v, want %v", env.CorrelationID, c.want)
			}
			for i, id := range c.want {
				if env.CorrelationID[i] != id {
					t.Fatalf("correlation_id[%d] = %q, want %q", i, env.CorrelationID[i], id)
				}
			}
		})
	}
}

func TestCorrelationIDsAlwaysEmitSequence(t *testing.T) {
	env := Envelope{Kind: "chat", CorrelationID: CorrelationIDs{"env-1"}}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("round-trip unmarshal: %v", err)
	}
	if _, ok := raw["correlation_id"].([]interface{}); !ok {
		t.Fatalf("correlation_id should marshal as a sequence, got %T", raw["correlation_id"])
	}
}

func TestCloneDoesNotAliasSlices(t *testing.T) {
	env := Envelope{Kind: "chat", To: []string{"alice"}, CorrelationID: CorrelationIDs{"env-1"}}
	clone := env.Clone()
	clone.To[0] = "mallory"
	clone.CorrelationID[0] = "env-2"
	if env.To[0] != "alice" || env.CorrelationID[0] != "env-1" {
		t.Fatalf("Clone aliased the original's slices: %+v", env)
	}
}
