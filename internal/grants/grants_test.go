package grants

import (
	"testing"

	"github.com/mew-run/gateway/internal/capability"
)

func pat(kind string) capability.Pattern {
	return capability.Pattern{Kind: kind}
}

func TestAddAndForRecipient(t *testing.T) {
	tbl := New()
	tbl.Add("bob", "grant-1", []capability.Pattern{pat("chat")})

	got := tbl.ForRecipient("bob")
	if len(got) != 1 || len(got["grant-1"]) != 1 || got["grant-1"][0].Kind != "chat" {
		t.Fatalf("unexpected grant table: %+v", got)
	}
	if len(tbl.ForRecipient("nobody")) != 0 {
		t.Fatalf("expected empty map for unknown recipient")
	}
}

func TestReGrantProducesTwoIndependentRecords(t *testing.T) {
	tbl := New()
	tbl.Add("bob", "grant-1", []capability.Pattern{pat("chat")})
	tbl.Add("bob", "grant-2", []capability.Pattern{pat("chat")})

	if len(tbl.ForRecipient("bob")) != 2 {
		t.Fatalf("expected two independent grant records")
	}

	tbl.RevokeByID("bob", "grant-1")
	rest := tbl.ForRecipient("bob")
	if len(rest) != 1 {
		t.Fatalf("expected one record left after revoking by id, got %d", len(rest))
	}
	if _, ok := rest["grant-2"]; !ok {
		t.Fatalf("expected grant-2 to survive")
	}
}

func TestRevokeByIDRemovesEmptyRecipient(t *testing.T) {
	tbl := New()
	tbl.Add("bob", "grant-1", []capability.Pattern{pat("chat")})
	tbl.RevokeByID("bob", "grant-1")
	if len(tbl.ForRecipient("bob")) != 0 {
		t.Fatalf("expected recipient entry fully removed")
	}
}

func TestRevokeByPatternsStripsAcrossRecords(t *testing.T) {
	tbl := New()
	tbl.Add("bob", "grant-1", []capability.Pattern{pat("chat"), pat("mcp/request")})
	tbl.Add("bob", "grant-2", []capability.Pattern{pat("chat")})

	tbl.RevokeByPatterns("bob", []capability.Pattern{pat("chat")})

	rest := tbl.ForRecipient("bob")
	if len(rest) != 1 {
		t.Fatalf("expected grant-2 (now empty) dropped and grant-1 kept, got %+v", rest)
	}
	if len(rest["grant-1"]) != 1 || rest["grant-1"][0].Kind != "mcp/request" {
		t.Fatalf("expected grant-1 to retain only mcp/request, got %+v", rest["grant-1"])
	}
}

func TestPurgeRecipientRemovesEverything(t *testing.T) {
	tbl := New()
	tbl.Add("bob", "grant-1", []capability.Pattern{pat("chat")})
	tbl.Add("alice", "grant-2", []capability.Pattern{pat("chat")})

	tbl.PurgeRecipient("bob")

	if len(tbl.ForRecipient("bob")) != 0 {
		t.Fatalf("expected bob purged")
	}
	if len(tbl.ForRecipient("alice")) != 1 {
		t.Fatalf("expected alice unaffected")
	}
}
