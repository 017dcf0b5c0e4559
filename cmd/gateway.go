package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mew-run/gateway/internal/gatewaycore"
	"github.com/mew-run/gateway/internal/gatewayserver"
	"github.com/mew-run/gateway/internal/spacecfg"
	"github.com/mew-run/gateway/internal/telemetry"
	"github.com/mew-run/gateway/pkg/protocol"
)

func startCmd() *cobra.Command {
	var (
		spaceConfigPath string
		fifoDir         string
		logLevel        string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gateway for one space",
		Long:  "start loads a space.yaml descriptor and serves that space's participants until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(spaceConfigPath, fifoDir, logLevel)
		},
	}

	cmd.Flags().StringVar(&spaceConfigPath, "space-config", "space.yaml", "path to the space descriptor")
	cmd.Flags().StringVar(&fifoDir, "fifo-dir", "", "directory for stdio participant FIFO pairs (default: <space-dir>/.mew/fifos)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: error, warn, info, debug")

	return cmd
}

// setupLogger builds the process-wide structured logger: a text handler on
// stdout, mirrored to GATEWAY_LOG_FILE when that variable is set, at the
// level --log-level selects.
func setupLogger(levelName string) (*slog.Logger, func(), error) {
	level, err := parseLevel(levelName)
	if err != nil {
		return nil, nil, err
	}

	out := io.Writer(os.Stdout)
	closeFn := func() {}
	if path := os.Getenv("GATEWAY_LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open GATEWAY_LOG_FILE %s: %w", path, err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { f.Close() }
	}

	log := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return log, closeFn, nil
}

func parseLevel(name string) (slog.Level, error) {
	switch name {
	case "error":
		return slog.LevelError, nil
	case "warn":
		return slog.LevelWarn, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	default:
		return 0, fmt.Errorf("unknown --log-level %q", name)
	}
}

// runStart wires a spacecfg.Config into a GatewayCore and a gatewayserver,
// then blocks until SIGINT/SIGTERM. Startup failures (bad config, unusable
// telemetry endpoint, port in use) exit 1; a signal-driven shutdown exits 0.
func runStart(spaceConfigPath, fifoDir, logLevel string) error {
	log, closeLog, err := setupLogger(logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()
	slog.SetDefault(log)

	cfg, err := spacecfg.Load(spaceConfigPath)
	if err != nil {
		log.Error("failed to load space config", "path", spaceConfigPath, "error", err)
		os.Exit(1)
	}

	shutdownTelemetry, err := telemetry.Init(cfg.Gateway.Telemetry)
	if err != nil {
		log.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	core := gatewaycore.New(gatewaycore.Options{
		SpaceID:            cfg.Space.ID,
		ProtocolVersion:    protocol.ProtocolVersion,
		Logger:             log,
		Tokens:             cfg.ResolveToken,
		StaticCapabilities: cfg.CapabilitiesFor,
	})

	srv := gatewayserver.New(core, cfg, fifoDir, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	log.Info("gateway starting", "version", Version, "space", cfg.Space.ID, "space_config", spaceConfigPath)
	if err := srv.Start(ctx); err != nil {
		log.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
	return nil
}
