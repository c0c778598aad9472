package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scorelink",
	Short: "Discover, pair and monitor score devices over Bluetooth",
	Long: `scorelink finds nearby phones and watches, keeps a table of known devices,
and holds one serial connection per device class.

- Scan for nearby devices and list the ones not registered yet
- Register, score and remove devices
- Connect to a watch and stream its heart rate (HR:<bpm> telemetry)
- Send text to a connected device`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("scorelink %s (commit %s, built %s)\n", formatVersion(version), commit, date))

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(sendCmd)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default ~/.config/scorelink/config.yaml)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("verbose", false, "Enable debug logging")
	flags.String("db", "", "Device database path (overrides store.path)")
	flags.String("backend", "", "Radio backend: bluez or goble (overrides radio.backend)")
	flags.String("adapter", "", "Controller name, e.g. hci0 (overrides radio.adapter)")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
