// Package gatewayserver wires a spacecfg.Config and a gatewaycore.GatewayCore
// to live transports: it starts one FifoChannel per stdio-bound participant
// and an HTTP server that upgrades WebSocket connections on any path other
// than /health, which serves a JSON health check.
package gatewayserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/mew-run/gateway/internal/gatewaycore"
	"github.com/mew-run/gateway/internal/spacecfg"
	"github.com/mew-run/gateway/internal/transport"
)

// Server binds a GatewayCore to the space's configured transports.
type Server struct {
	core    *gatewaycore.GatewayCore
	cfg     *spacecfg.Config
	fifoDir string
	log     *slog.Logger

	upgrader *transport.Upgrader
	fifos    []*transport.FifoChannel

	httpServer *http.Server
}

// New builds a Server for cfg's participants, not yet listening.
func New(core *gatewaycore.GatewayCore, cfg *spacecfg.Config, fifoDir string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if fifoDir == "" {
		fifoDir = filepath.Join(cfg.SpaceDir(), ".mew", "fifos")
	}
	return &Server{
		core:     core,
		cfg:      cfg,
		fifoDir:  fifoDir,
		log:      log,
		upgrader: transport.NewUpgrader(),
	}
}

// Start brings up every stdio participant's FIFO pair and the WebSocket
// listener, then blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.startFifos(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    s.cfg.Gateway.WebSocket.Listen,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Shutdown(shutdownCtx)
	}()

	s.log.Info("gateway listening", "space", s.cfg.Space.ID, "addr", s.cfg.Gateway.WebSocket.Listen)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gatewayserver: listen: %w", err)
	}
	return nil
}

// startFifos creates (or reuses) a FIFO pair for every participant resolved
// to the stdio transport and attaches it to the core.
func (s *Server) startFifos() error {
	for pid := range s.cfg.Participants {
		if s.cfg.TransportFor(pid) != spacecfg.TransportStdio {
			continue
		}
		ch, err := transport.NewFifoChannel(s.fifoDir, pid)
		if err != nil {
			return fmt.Errorf("gatewayserver: fifo channel for %s: %w", pid, err)
		}
		s.fifos = append(s.fifos, ch)
		s.core.Attach(ch)
		s.log.Info("fifo participant ready", "participant", pid, "dir", s.fifoDir)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ch, err := s.upgrader.Upgrade(w, r)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.core.Attach(ch)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","space":%q}`, s.cfg.Space.ID)
}

// Shutdown closes every live FIFO channel and the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) {
	for _, ch := range s.fifos {
		_ = ch.Close()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Shutdown(ctx)
	}
}
