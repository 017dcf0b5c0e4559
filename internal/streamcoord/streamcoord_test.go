package streamcoord

import (
	"testing"
	"time"
)

func TestAllocateAssignsMonotonicIDs(t *testing.T) {
	c := New()
	now := time.Unix(0, 0)

	first := c.Allocate("req-1", "alice", "up", now)
	second := c.Allocate("req-2", "alice", "", now)

	if first == second {
		t.Fatalf("expected distinct stream ids, got %q twice", first)
	}

	rec, ok := c.Get(first)
	if !ok {
		t.Fatalf("expected stream %q to be recorded", first)
	}
	if rec.Owner != "alice" || rec.RequestID != "req-1" || rec.Direction != "up" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	rec2, _ := c.Get(second)
	if rec2.Direction != "unknown" {
		t.Fatalf("expected empty direction to default to unknown, got %q", rec2.Direction)
	}
}

func TestCloseRemovesRecord(t *testing.T) {
	c := New()
	id := c.Allocate("req-1", "alice", "up", time.Unix(0, 0))
	c.Close(id)
	if _, ok := c.Get(id); ok {
		t.Fatalf("expected stream removed after Close")
	}
}

func TestPurgeOwnerOnlyRemovesItsOwnStreams(t *testing.T) {
	c := New()
	now := time.Unix(0, 0)
	a1 := c.Allocate("req-1", "alice", "up", now)
	a2 := c.Allocate("req-2", "alice", "down", now)
	b1 := c.Allocate("req-3", "bob", "up", now)

	removed := c.PurgeOwner("alice")
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed streams, got %d: %v", len(removed), removed)
	}
	for _, id := range []string{a1, a2} {
		if _, ok := c.Get(id); ok {
			t.Fatalf("expected %q purged", id)
		}
	}
	if _, ok := c.Get(b1); !ok {
		t.Fatalf("expected bob's stream to survive alice's purge")
	}
}
