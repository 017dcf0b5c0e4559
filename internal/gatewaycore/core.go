// Package gatewaycore hosts the single authoritative GatewayCore instance
// of a process: it owns the participant registry, the runtime grant table
// and the stream coordinator, and exposes the envelope entry point every
// transport adapter calls into.
package gatewaycore

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mew-run/gateway/internal/capability"
	"github.com/mew-run/gateway/internal/grants"
	"github.com/mew-run/gateway/internal/registry"
	"github.com/mew-run/gateway/internal/streamcoord"
	"github.com/mew-run/gateway/internal/transport"
	"github.com/mew-run/gateway/pkg/protocol"
)

// Clock is the time source GatewayCore uses, overridable in tests.
type Clock func() time.Time

// GatewayCore is a Gateway's single authoritative process-wide instance. A
// single mutex serializes envelope handling end to end, so every state
// mutation triggered by an incoming envelope appears atomic with respect to
// that envelope's fan-out.
type GatewayCore struct {
	SpaceID         string
	ProtocolVersion string

	log *slog.Logger

	mu       sync.Mutex
	registry *registry.Registry
	grants   *grants.Table
	streams  *streamcoord.Coordinator

	// tokens resolves the expected token for a participant at join time.
	tokens func(participantID string) (string, error)
	// staticCapabilities resolves a participant's configured capability set.
	staticCapabilities func(participantID string) []capability.Pattern

	now Clock
}

// Options configures a new GatewayCore.
type Options struct {
	SpaceID            string
	ProtocolVersion    string
	Logger             *slog.Logger
	Tokens             func(participantID string) (string, error)
	StaticCapabilities func(participantID string) []capability.Pattern
	Clock              Clock
}

// New builds a GatewayCore ready to accept channels.
func New(opts Options) *GatewayCore {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &GatewayCore{
		SpaceID:            opts.SpaceID,
		ProtocolVersion:    opts.ProtocolVersion,
		log:                log,
		registry:           registry.New(),
		grants:             grants.New(),
		streams:            streamcoord.New(),
		tokens:             opts.Tokens,
		staticCapabilities: opts.StaticCapabilities,
		now:                clock,
	}
}

// Attach binds a freshly connected channel to the core: it wires the
// envelope/stream-frame/disconnect/error callbacks and puts the channel into
// the authenticating state, awaiting the join handshake's first envelope.
func (g *GatewayCore) Attach(ch transport.Channel) {
	conn := &connState{core: g, channel: ch}
	ch.OnEnvelope(conn.handleEnvelope)
	ch.OnStreamFrame(conn.handleStreamFrame)
	ch.OnDisconnect(conn.handleDisconnect)
	ch.OnError(func(err error) {
		g.log.Warn("channel error", "error", err)
		// Malformed framing/JSON: tell the offending channel and keep
		// going, never disconnect for this alone.
		_ = ch.Send(g.validationError("", err.Error()))
	})
}

// connState tracks one channel's join-handshake progress; it is the only
// per-connection mutable state outside the GatewayCore tables.
type connState struct {
	core    *GatewayCore
	channel transport.Channel

	mu            sync.Mutex
	participantID string
	joined        bool
}

func (c *connState) boundID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participantID, c.joined
}

func (c *connState) bind(id string) {
	c.mu.Lock()
	c.participantID = id
	c.joined = true
	c.mu.Unlock()
}

func (g *GatewayCore) mintID() string {
	return uuid.NewString()
}

func (g *GatewayCore) timestamp() string {
	return g.now().UTC().Format(time.RFC3339Nano)
}

// broadcastLocked serializes env once and sends it to every live
// participant. Callers must hold g.mu. A send failure on one channel is
// logged and does not affect delivery to the others.
func (g *GatewayCore) broadcastLocked(env protocol.Envelope) {
	for _, p := range g.registry.All() {
		if err := p.Channel.Send(env); err != nil {
			g.log.Warn("broadcast send failed", "participant", p.ID, "kind", env.Kind, "error", err)
		}
	}
}

// sendToLocked delivers env to a single participant by id, if joined.
// Callers must hold g.mu.
func (g *GatewayCore) sendToLocked(participantID string, env protocol.Envelope) {
	p, ok := g.registry.Get(participantID)
	if !ok {
		return
	}
	if err := p.Channel.Send(env); err != nil {
		g.log.Warn("direct send failed", "participant", participantID, "kind", env.Kind, "error", err)
	}
}

// stampLocked fills protocol/id/ts and overwrites from, normalizing
// correlation_id to a sequence.
func (g *GatewayCore) stampLocked(env protocol.Envelope, senderID string) protocol.Envelope {
	env = env.Clone()
	if env.Protocol == "" {
		env.Protocol = g.ProtocolVersion
	}
	if env.ID == "" {
		env.ID = g.mintID()
	}
	if env.Timestamp == "" {
		env.Timestamp = g.timestamp()
	}
	env.From = senderID
	return env
}

func (g *GatewayCore) validateProtocolVersion(env protocol.Envelope) error {
	if env.Protocol != "" && env.Protocol != g.ProtocolVersion {
		return fmt.Errorf("protocol version mismatch: got %q want %q", env.Protocol, g.ProtocolVersion)
	}
	return nil
}
