// Package streamcoord allocates and tracks gateway-brokered binary streams.
package streamcoord

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Record is the bookkeeping kept for one open stream.
type Record struct {
	RequestID string
	Owner     string
	Direction string
	CreatedAt time.Time
}

// Coordinator allocates monotonic stream ids and tracks open streams,
// keyed by streamID. The id counter is an atomic; the stream table itself
// is owned and guarded by gatewaycore's single state mutex.
type Coordinator struct {
	counter atomic.Uint64
	streams map[string]*Record
}

// New builds an empty Coordinator.
func New() *Coordinator {
	return &Coordinator{streams: make(map[string]*Record)}
}

// Allocate assigns the next "stream-<n>" id and records it.
func (c *Coordinator) Allocate(requestID, owner, direction string, now time.Time) string {
	n := c.counter.Add(1)
	id := fmt.Sprintf("stream-%d", n)
	if direction == "" {
		direction = "unknown"
	}
	c.streams[id] = &Record{RequestID: requestID, Owner: owner, Direction: direction, CreatedAt: now}
	return id
}

// Get returns the record for streamID, if open.
func (c *Coordinator) Get(streamID string) (*Record, bool) {
	r, ok := c.streams[streamID]
	return r, ok
}

// Close removes a stream record.
func (c *Coordinator) Close(streamID string) {
	delete(c.streams, streamID)
}

// PurgeOwner removes every stream record owned by participantID, returning
// the ids removed so the caller can synthesize stream/close envelopes for
// the abandoned streams.
func (c *Coordinator) PurgeOwner(participantID string) []string {
	var removed []string
	for id, rec := range c.streams {
		if rec.Owner == participantID {
			removed = append(removed, id)
			delete(c.streams, id)
		}
	}
	return removed
}
