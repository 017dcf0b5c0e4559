package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mew-run/gateway/pkg/protocol"
)

// Version is set at build time via
// -ldflags "-X github.com/mew-run/gateway/cmd.Version=v1.0.0".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "MEW space gateway",
	Long:  "gateway is the authoritative process for one MEW space: it owns the participant roster, evaluates capability patterns, and fans out envelopes to every connected participant over FIFO and WebSocket transports.",
}

func init() {
	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("gateway %s (protocol %s)\n", Version, protocol.ProtocolVersion)
		},
	}
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
