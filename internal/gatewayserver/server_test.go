package gatewayserver

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/mew-run/gateway/internal/capability"
	"github.com/mew-run/gateway/internal/gatewaycore"
	"github.com/mew-run/gateway/internal/spacecfg"
)

func testConfig(t *testing.T) *spacecfg.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "space.yaml")
	body := "space:\n  id: demo\nparticipants:\n  alice:\n    transport: stdio\n  bob:\n    transport: websocket\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := spacecfg.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestStartFifosCreatesOnlyStdioParticipantPairs(t *testing.T) {
	cfg := testConfig(t)
	core := gatewaycore.New(gatewaycore.Options{
		SpaceID:            cfg.Space.ID,
		StaticCapabilities: func(string) []capability.Pattern { return nil },
	})
	fifoDir := t.TempDir()
	srv := New(core, cfg, fifoDir, nil)

	if err := srv.startFifos(); err != nil {
		t.Fatalf("startFifos: %v", err)
	}
	defer srv.Shutdown(nil)

	for _, name := range []string{"alice-in", "alice-out"} {
		if _, err := os.Stat(filepath.Join(fifoDir, name)); err != nil {
			t.Fatalf("expected fifo %s to exist: %v", name, err)
		}
	}
	for _, name := range []string{"bob-in", "bob-out"} {
		if _, err := os.Stat(filepath.Join(fifoDir, name)); !os.IsNotExist(err) {
			t.Fatalf("did not expect fifo %s for a websocket participant", name)
		}
	}
}

func TestHandleHealth(t *testing.T) {
	cfg := testConfig(t)
	core := gatewaycore.New(gatewaycore.Options{SpaceID: cfg.Space.ID})
	srv := New(core, cfg, t.TempDir(), nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	srv.handleHealth(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got == "" {
		t.Fatalf("expected a non-empty health body")
	}
}
