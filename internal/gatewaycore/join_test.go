package gatewaycore

import (
	"testing"

	"github.com/mew-run/gateway/internal/capability"
	"github.com/mew-run/gateway/internal/transport"
	"github.com/mew-run/gateway/pkg/protocol"
)

func TestWelcomeIsFirstEnvelopeAndListsPeers(t *testing.T) {
	f := newFixture()
	f.tokens["alice"] = "A"
	f.tokens["bob"] = "B"
	f.caps["alice"] = []capability.Pattern{mustPattern(t, `{"kind":"chat"}`)}

	f.join(t, "alice", "A")
	bob := f.join(t, "bob", "B")

	if len(bob.Received) == 0 {
		t.Fatal("bob received nothing after joining")
	}
	first := bob.Received[0]
	if first.Kind != protocol.KindSystemWelcome {
		t.Fatalf("first envelope = %q, want system/welcome", first.Kind)
	}
	if first.From != protocol.GatewaySender {
		t.Fatalf("welcome from = %q, want %q", first.From, protocol.GatewaySender)
	}

	payload := payloadOf(t, first)
	you, _ := payload["you"].(map[string]interface{})
	if you["id"] != "bob" {
		t.Fatalf("welcome you.id = %v, want bob", you["id"])
	}
	peers, _ := payload["participants"].([]interface{})
	if len(peers) != 1 {
		t.Fatalf("welcome should list exactly the one other participant, got %v", peers)
	}
	peer, _ := peers[0].(map[string]interface{})
	if peer["id"] != "alice" {
		t.Fatalf("welcome peer id = %v, want alice", peer["id"])
	}
	if _, ok := peer["capabilities"].([]interface{}); !ok {
		t.Fatalf("welcome peer capabilities should be a pattern list, got %v", peer["capabilities"])
	}
}

func TestDuplicateJoinClosesOldChannel(t *testing.T) {
	f := newFixture()
	f.tokens["alice"] = "A"
	f.tokens["bob"] = "B"
	f.caps["alice"] = []capability.Pattern{mustPattern(t, `{"kind":"chat"}`)}

	bob := f.join(t, "bob", "B")
	old := f.join(t, "alice", "A")
	fresh := f.join(t, "alice", "A")

	rec, ok := f.core.registry.Get("alice")
	if !ok {
		t.Fatal("alice should still be registered after re-join")
	}
	if rec.Channel != transport.Channel(fresh) {
		t.Fatal("registry should hold the newest channel after re-join")
	}

	// The superseded channel's disconnect must not purge the replacement
	// or broadcast a leave event.
	old.Close()
	if _, ok := f.core.registry.Get("alice"); !ok {
		t.Fatal("closing the superseded channel removed the re-joined participant")
	}
	for _, env := range bob.Received {
		if env.Kind != protocol.KindSystemPresence {
			continue
		}
		if payloadOf(t, env)["event"] == "leave" {
			t.Fatal("no leave presence should be broadcast for a superseded channel")
		}
	}

	fresh.Deliver(protocol.Envelope{Kind: "chat", Payload: mustJSON(t, map[string]interface{}{"text": "still here"})})
	if got := bob.Last().Kind; got != "chat" {
		t.Fatalf("re-joined participant should still route, last kind = %q", got)
	}
}

func TestJoinRejectsWrongSpace(t *testing.T) {
	f := newFixture()
	f.tokens["alice"] = "A"

	ch := transport.NewMemoryChannel("alice")
	f.core.Attach(ch)
	ch.Deliver(protocol.Envelope{
		Kind:    protocol.KindSystemJoin,
		Payload: mustJSON(t, map[string]interface{}{"participantId": "alice", "space": "other", "token": "A"}),
	})

	last := ch.Last()
	if last.Kind != protocol.KindSystemError {
		t.Fatalf("expected system/error, got %+v", last)
	}
	if payloadOf(t, last)["message"] != "Invalid space for this gateway" {
		t.Fatalf("unexpected error message: %v", payloadOf(t, last))
	}
	if _, ok := f.core.registry.Get("alice"); ok {
		t.Fatal("alice should not be registered after a wrong-space join")
	}
}

func TestLegacyJoinFormAccepted(t *testing.T) {
	f := newFixture()
	f.tokens["alice"] = "A"

	ch := transport.NewMemoryChannel("alice")
	f.core.Attach(ch)
	ch.Deliver(protocol.Envelope{
		Kind:    "join",
		Payload: mustJSON(t, map[string]interface{}{"type": "join", "participantId": "alice", "space": "demo", "token": "A"}),
	})

	if _, ok := f.core.registry.Get("alice"); !ok {
		t.Fatal("legacy join form should register the participant")
	}
	if got := ch.Received[0].Kind; got != protocol.KindSystemWelcome {
		t.Fatalf("first envelope = %q, want system/welcome", got)
	}
}

func TestRegisterMergesCapabilitiesAndBroadcastsUpdate(t *testing.T) {
	f := newFixture()
	f.tokens["alice"] = "A"
	f.tokens["bob"] = "B"

	alice := f.join(t, "alice", "A")
	bob := f.join(t, "bob", "B")

	bob.Deliver(protocol.Envelope{Kind: "chat", Payload: mustJSON(t, map[string]interface{}{"text": "pre"})})
	if got := bob.Last().Kind; got != protocol.KindSystemError {
		t.Fatalf("unregistered chat should be rejected, last kind = %q", got)
	}

	bob.Deliver(protocol.Envelope{
		Kind:    protocol.KindSystemRegister,
		Payload: mustJSON(t, map[string]interface{}{"capabilities": []interface{}{map[string]interface{}{"kind": "chat"}}}),
	})

	update := alice.Last()
	if update.Kind != protocol.KindSystemPresence || payloadOf(t, update)["event"] != "update" {
		t.Fatalf("expected presence update at alice, got %q %v", update.Kind, payloadOf(t, update))
	}

	bob.Deliver(protocol.Envelope{Kind: "chat", Payload: mustJSON(t, map[string]interface{}{"text": "post"})})
	if got := alice.Last().Kind; got != "chat" {
		t.Fatalf("registered chat should be broadcast, alice last kind = %q", got)
	}
}

func TestRegisterRejectsNonSequenceCapabilities(t *testing.T) {
	f := newFixture()
	f.tokens["bob"] = "B"

	bob := f.join(t, "bob", "B")
	bob.Deliver(protocol.Envelope{
		Kind:    protocol.KindSystemRegister,
		Payload: mustJSON(t, map[string]interface{}{"capabilities": "chat"}),
	})

	last := bob.Last()
	if last.Kind != protocol.KindSystemError {
		t.Fatalf("expected system/error, got %q", last.Kind)
	}
	if payloadOf(t, last)["error"] != protocol.ErrCodeInvalidReq {
		t.Fatalf("expected invalid_request, got %v", payloadOf(t, last))
	}
}

func TestRegisterWithHeldPatternLeavesEffectiveSetUnchanged(t *testing.T) {
	f := newFixture()
	f.tokens["bob"] = "B"
	f.caps["bob"] = []capability.Pattern{mustPattern(t, `{"kind":"chat"}`)}

	bob := f.join(t, "bob", "B")
	rec, _ := f.core.registry.Get("bob")
	before := len(rec.EffectiveCapabilities())

	bob.Deliver(protocol.Envelope{
		Kind:    protocol.KindSystemRegister,
		Payload: mustJSON(t, map[string]interface{}{"capabilities": []interface{}{map[string]interface{}{"kind": "chat"}}}),
	})

	rec, _ = f.core.registry.Get("bob")
	if got := len(rec.EffectiveCapabilities()); got != before {
		t.Fatalf("effective set grew from %d to %d on an already-held pattern", before, got)
	}
}

func TestHeartbeatBypassesAuthorization(t *testing.T) {
	f := newFixture()
	f.tokens["alice"] = "A"
	f.tokens["bob"] = "B"

	alice := f.join(t, "alice", "A")
	bob := f.join(t, "bob", "B")

	bob.Deliver(protocol.Envelope{Kind: protocol.KindSystemHeartbeat})
	if got := alice.Last().Kind; got != protocol.KindSystemHeartbeat {
		t.Fatalf("heartbeat should be broadcast without capabilities, alice last kind = %q", got)
	}
}

func TestProtocolVersionMismatchRejected(t *testing.T) {
	f := newFixture()
	f.tokens["alice"] = "A"
	f.caps["alice"] = []capability.Pattern{mustPattern(t, `{"kind":"chat"}`)}

	alice := f.join(t, "alice", "A")
	alice.Deliver(protocol.Envelope{
		Protocol: "mew/v0.3",
		Kind:     "chat",
		Payload:  mustJSON(t, map[string]interface{}{"text": "hi"}),
	})

	last := alice.Last()
	if last.Kind != protocol.KindSystemError {
		t.Fatalf("expected system/error, got %q", last.Kind)
	}
	if payloadOf(t, last)["code"] != protocol.ErrCodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", payloadOf(t, last))
	}
}

func TestRevokeByIDRemovesAuthorization(t *testing.T) {
	f := newFixture()
	f.tokens["alice"] = "A"
	f.tokens["bob"] = "B"
	f.caps["alice"] = []capability.Pattern{
		mustPattern(t, `{"kind":"capability/grant"}`),
		mustPattern(t, `{"kind":"capability/revoke"}`),
	}

	alice := f.join(t, "alice", "A")
	bob := f.join(t, "bob", "B")
	bobBefore := len(bob.Received)

	alice.Deliver(protocol.Envelope{
		Kind: protocol.KindCapabilityGrant,
		Payload: mustJSON(t, map[string]interface{}{
			"recipient":    "bob",
			"capabilities": []capability.Pattern{mustPattern(t, `{"kind":"chat"}`)},
		}),
	})

	if len(bob.Received) <= bobBefore || bob.Received[bobBefore].Kind != protocol.KindCapabilityGrantAck {
		t.Fatalf("expected capability/grant-ack after the grant, got %+v", bob.Received[bobBefore:])
	}
	grantID, _ := payloadOf(t, bob.Received[bobBefore])["grant_id"].(string)
	if grantID == "" {
		t.Fatal("grant-ack should carry the grant id")
	}

	bob.Deliver(protocol.Envelope{Kind: "chat", Payload: mustJSON(t, map[string]interface{}{"text": "granted"})})
	if got := alice.Last().Kind; got != "chat" {
		t.Fatalf("granted chat should be broadcast, got %q", got)
	}

	alice.Deliver(protocol.Envelope{
		Kind:    protocol.KindCapabilityRevoke,
		Payload: mustJSON(t, map[string]interface{}{"recipient": "bob", "grant_id": grantID}),
	})

	bob.Deliver(protocol.Envelope{Kind: "chat", Payload: mustJSON(t, map[string]interface{}{"text": "revoked"})})
	if got := bob.Last().Kind; got != protocol.KindSystemError {
		t.Fatalf("chat after revoke should be rejected, bob last kind = %q", got)
	}
}

func TestRevokeByPatternStripsMatchingGrants(t *testing.T) {
	f := newFixture()
	f.tokens["alice"] = "A"
	f.tokens["bob"] = "B"
	f.caps["alice"] = []capability.Pattern{
		mustPattern(t, `{"kind":"capability/grant"}`),
		mustPattern(t, `{"kind":"capability/revoke"}`),
	}

	alice := f.join(t, "alice", "A")
	bob := f.join(t, "bob", "B")

	alice.Deliver(protocol.Envelope{
		Kind: protocol.KindCapabilityGrant,
		Payload: mustJSON(t, map[string]interface{}{
			"recipient":    "bob",
			"capabilities": []capability.Pattern{mustPattern(t, `{"kind":"chat"}`)},
		}),
	})

	alice.Deliver(protocol.Envelope{
		Kind: protocol.KindCapabilityRevoke,
		Payload: mustJSON(t, map[string]interface{}{
			"recipient":    "bob",
			"capabilities": []capability.Pattern{mustPattern(t, `{"kind":"chat"}`)},
		}),
	})

	bob.Deliver(protocol.Envelope{Kind: "chat", Payload: mustJSON(t, map[string]interface{}{"text": "hi"})})
	if got := bob.Last().Kind; got != protocol.KindSystemError {
		t.Fatalf("chat after pattern revoke should be rejected, got %q", got)
	}
}
