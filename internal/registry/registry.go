// Package registry is the authoritative table of joined participants.
package registry

import (
	"sync"

	"github.com/mew-run/gateway/internal/capability"
	"github.com/mew-run/gateway/internal/transport"
)

// State is a participant's join-handshake state.
type State int

const (
	StateDisconnected State = iota
	StateJoining
	StateJoined
)

// Participant is the registry record created on successful join and
// destroyed on disconnect.
type Participant struct {
	ID      string
	Channel transport.Channel
	Token   string

	// StaticCapabilities come from configuration; RuntimeGrants are added by
	// capability/grant, keyed by grant id.
	StaticCapabilities []capability.Pattern
	RuntimeGrants      map[string][]capability.Pattern

	State State
}

// EffectiveCapabilities is staticCapabilities ∪ flatten(runtimeGrants) ∪ the
// implicit baseline.
func (p *Participant) EffectiveCapabilities() []capability.Pattern {
	sets := [][]capability.Pattern{p.StaticCapabilities}
	for _, grant := range p.RuntimeGrants {
		sets = append(sets, grant)
	}
	sets = append(sets, capability.Baseline())
	return capability.Merge(sets...)
}

// Registry is the single authoritative participantId -> Participant table.
// The gatewaycore package serializes all registry, grant, and stream
// mutations under its own state mutex; Registry's internal lock only makes
// direct reads from other goroutines (tests, diagnostics) safe.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]*Participant
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{participants: make(map[string]*Participant)}
}

// Get returns the participant by id, if joined.
func (r *Registry) Get(id string) (*Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	return p, ok
}

// Put installs or replaces a participant record.
func (r *Registry) Put(p *Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ID] = p
}

// Remove deletes a participant record.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, id)
}

// All returns every currently joined participant. The returned slice is a
// snapshot safe to range over without holding the registry lock.
func (r *Registry) All() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

// Count returns the number of currently registered participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}
