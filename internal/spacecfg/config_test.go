package spacecfg

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "space.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
space:
  id: demo
  transport:
    default: stdio
    overrides:
      bob: websocket
participants:
  alice:
    capabilities:
      - kind: chat
      - kind: mcp/request
        payload:
          method: "tools/*"
  bob:
    transport: websocket
defaults:
  capabilities:
    - kind: "*"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Space.ID != "demo" {
		t.Fatalf("got space id %q", cfg.Space.ID)
	}
	if cfg.Gateway.WebSocket.Listen != "127.0.0.1:4700" {
		t.Fatalf("expected default listen addr, got %q", cfg.Gateway.WebSocket.Listen)
	}
	if got := cfg.TransportFor("alice"); got != TransportStdio {
		t.Fatalf("alice transport = %q, want stdio", got)
	}
	if got := cfg.TransportFor("bob"); got != TransportWebSocket {
		t.Fatalf("bob transport = %q, want websocket", got)
	}
	if got := cfg.TransportFor("carol"); got != TransportStdio {
		t.Fatalf("carol (unconfigured) transport = %q, want space default stdio", got)
	}

	aliceCaps := cfg.CapabilitiesFor("alice")
	if len(aliceCaps) != 2 || aliceCaps[0].Kind != "chat" {
		t.Fatalf("alice capabilities = %+v", aliceCaps)
	}
	withPayload := aliceCaps[1]
	if withPayload.Kind != "mcp/request" || !withPayload.HasPayload {
		t.Fatalf("expected payload pattern preserved, got %+v", withPayload)
	}
	if pv, ok := withPayload.Payload["method"]; !ok || !pv.IsScalar || pv.Scalar != "tools/*" {
		t.Fatalf("expected method pattern tools/*, got %+v", withPayload.Payload)
	}
	carolCaps := cfg.CapabilitiesFor("carol")
	if len(carolCaps) != 1 || carolCaps[0].Kind != "*" {
		t.Fatalf("carol (falls back to defaults) capabilities = %+v", carolCaps)
	}
}

func TestLoadRequiresSpaceID(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "space:\n  id: \"\"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing space.id")
	}
}

func TestResolveTokenGeneratesAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "space:\n  id: demo\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	token, err := cfg.ResolveToken("alice")
	if err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	if token == "" {
		t.Fatal("expected a generated token")
	}

	again, err := cfg.ResolveToken("alice")
	if err != nil {
		t.Fatalf("ResolveToken (second call): %v", err)
	}
	if again != token {
		t.Fatalf("expected persisted token to be reused, got %q want %q", again, token)
	}

	info, err := os.Stat(filepath.Join(dir, ".mew", "tokens", "alice.token"))
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("token file perms = %v, want 0600", info.Mode().Perm())
	}
}

func TestResolveTokenPrefersEnvThenConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
space:
  id: demo
participants:
  alice:
    tokens: ["configured-token"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if token, err := cfg.ResolveToken("alice"); err != nil || token != "configured-token" {
		t.Fatalf("ResolveToken = %q, %v, want configured-token", token, err)
	}

	t.Setenv("MEW_TOKEN_ALICE", "env-token")
	if token, err := cfg.ResolveToken("alice"); err != nil || token != "env-token" {
		t.Fatalf("ResolveToken with env set = %q, %v, want env-token", token, err)
	}
}
