package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridwire-go/gridwire/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔═╗┬─┐┬┌┬┐┬ ┬┬┬─┐┌─┐
  ║ ╦├┬┘│ ││││││├┬┘├┤
  ╚═╝┴└─┴─┴┘└┴┘┴┴└─└─┘
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridwire",
		Short: "Multiplayer game sessions over raw UDP",
		Long: `Gridwire runs authoritative multiplayer game sessions over UDP.

The server owns the simulation and keeps every connected client's
world in sync. Features include:

  • Reliable delivery over plain UDP datagrams
  • Delta-compressed entity state snapshots
  • Lobby, late join and reconnect handling
  • Disk or S3 save storage
  • Prometheus metrics and pprof over HTTP`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add commands
	rootCmd.AddCommand(
		serveCmd(),
		initCmd(),
		savesCmd(),
		versionCmd(),
	)

	// Execute
	if err := rootCmd.Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

// printBanner prints the Gridwire ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
