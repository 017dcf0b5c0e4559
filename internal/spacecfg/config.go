// Package spacecfg loads the YAML space descriptor and resolves participant
// tokens. Loading is three steps: a Default() struct, a Load(path) that
// parses then applies environment overrides, and a final validation pass.
package spacecfg

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mew-run/gateway/internal/capability"
)

// TransportKind names the two transports a participant may be bound to.
type TransportKind string

const (
	TransportStdio     TransportKind = "stdio"
	TransportWebSocket TransportKind = "websocket"
)

// ParticipantConfig is one entry under the `participants:` map.
type ParticipantConfig struct {
	Transport    TransportKind        `yaml:"transport,omitempty"`
	Tokens       []string             `yaml:"tokens,omitempty"`
	Capabilities []capability.Pattern `yaml:"capabilities,omitempty"`
}

// TransportConfig is the `space.transport` block.
type TransportConfig struct {
	Default   TransportKind            `yaml:"default,omitempty"`
	Overrides map[string]TransportKind `yaml:"overrides,omitempty"`
}

// SpaceConfig is the `space` block.
type SpaceConfig struct {
	ID        string          `yaml:"id"`
	Transport TransportConfig `yaml:"transport,omitempty"`
}

// WebSocketConfig is the `gateway.websocket` block.
type WebSocketConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// GatewayConfig is the `gateway` block.
type GatewayConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig is the optional, gateway-only `telemetry` block consumed
// by internal/telemetry.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	ServiceName string `yaml:"service_name,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty"`
}

// DefaultsConfig is the `defaults` block.
type DefaultsConfig struct {
	Capabilities []capability.Pattern `yaml:"capabilities,omitempty"`
}

// Config is the fully loaded space descriptor.
type Config struct {
	Space        SpaceConfig                  `yaml:"space"`
	Gateway      GatewayConfig                `yaml:"gateway,omitempty"`
	Participants map[string]ParticipantConfig `yaml:"participants,omitempty"`
	Defaults     DefaultsConfig               `yaml:"defaults,omitempty"`

	// spaceDir is the directory the config file lives in, used to resolve
	// the .mew/tokens and .mew/fifos layout. Not part of
	// the YAML document itself.
	spaceDir string
}

// Default returns a Config with the standard fallbacks: stdio transport,
// loopback WebSocket listener on port 4700.
func Default() *Config {
	return &Config{
		Space: SpaceConfig{
			Transport: TransportConfig{Default: TransportStdio},
		},
		Gateway: GatewayConfig{
			WebSocket: WebSocketConfig{Listen: "127.0.0.1:4700"},
		},
		Participants: map[string]ParticipantConfig{},
	}
}

// Load reads and parses the space descriptor at path, applies environment
// overrides, and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("spacecfg: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("spacecfg: parse %s: %w", path, err)
	}
	cfg.spaceDir = filepath.Dir(path)

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays a small set of environment variables on top of
// the parsed file.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("GATEWAY_WEBSOCKET_LISTEN", &c.Gateway.WebSocket.Listen)
	envStr("MEW_SPACE_ID", &c.Space.ID)
}

func (c *Config) validate() error {
	if c.Space.ID == "" {
		return fmt.Errorf("spacecfg: space.id is required")
	}
	if c.Space.Transport.Default == "" {
		c.Space.Transport.Default = TransportStdio
	}
	if c.Gateway.WebSocket.Listen == "" {
		c.Gateway.WebSocket.Listen = "127.0.0.1:4700"
	}
	return nil
}

// SpaceDir is the directory the loaded config file lives in.
func (c *Config) SpaceDir() string {
	if c.spaceDir == "" {
		return "."
	}
	return c.spaceDir
}

// TransportFor resolves the effective transport for a participant, applying
// per-participant and space-level overrides in priority order.
func (c *Config) TransportFor(participantID string) TransportKind {
	if p, ok := c.Participants[participantID]; ok && p.Transport != "" {
		return p.Transport
	}
	if t, ok := c.Space.Transport.Overrides[participantID]; ok && t != "" {
		return t
	}
	if c.Space.Transport.Default != "" {
		return c.Space.Transport.Default
	}
	return TransportStdio
}

// CapabilitiesFor resolves the configured (static, pre-baseline) capability
// set for a participant: its own patterns if set, else defaults.capabilities.
func (c *Config) CapabilitiesFor(participantID string) []capability.Pattern {
	if p, ok := c.Participants[participantID]; ok && len(p.Capabilities) > 0 {
		return p.Capabilities
	}
	return c.Defaults.Capabilities
}
