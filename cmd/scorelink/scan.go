package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/scorelink/internal/config"
	"github.com/srg/scorelink/internal/device"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for nearby devices",
	Long: `Run one discovery session and list the devices found.

Discovery ends when the timeout elapses (12s by default), when the platform
ends it, or on Ctrl+C. Each address is listed once, in the order it was first
seen. With --new, devices already registered are left out.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanAllowList []string
	scanBlockList []string
	scanNewOnly   bool
	scanSort      bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default discovery.timeout)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", formatTable, "Output format (table, json)")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanNewOnly, "new", false, "Only show devices that are not registered")
	scanCmd.Flags().BoolVar(&scanSort, "sort", false, "Sort by name instead of discovery order")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(scanFormat); err != nil {
		return err
	}
	if scanDuration < 0 {
		return fmt.Errorf("invalid duration %s", scanDuration)
	}

	e, err := openEnv(cmd, true, func(cfg *config.Config) {
		if scanDuration > 0 {
			cfg.Discovery.Timeout = scanDuration
		}
		if len(scanAllowList) > 0 {
			cfg.Discovery.Allow = scanAllowList
		}
		if len(scanBlockList) > 0 {
			cfg.Discovery.Block = scanBlockList
		}
	})
	if err != nil {
		return err
	}
	defer e.Close()

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	ctx, cancel := interruptContext(cmd.Context(), out, "scan")
	defer cancel()

	timeout := e.cfg.Discovery.Timeout
	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for devices", "Scanning", timeout, "Processing results")
	progress.Start()
	defer progress.Stop()

	found, err := e.service.Scan(ctx)
	progress.Callback()("Processing results")
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.WithError(err).Error("scan failed")
		return err
	}

	if scanNewOnly {
		if found, err = e.service.NewDevices(context.Background()); err != nil {
			return err
		}
	}
	return displayScanResult(cmd, found)
}

func displayScanResult(cmd *cobra.Command, found []device.Peripheral) error {
	out := cmd.OutOrStdout()
	if scanSort {
		sort.SliceStable(found, func(i, j int) bool {
			return found[i].DisplayName() < found[j].DisplayName()
		})
	}

	if scanFormat == formatJSON {
		if found == nil {
			found = []device.Peripheral{}
		}
		return writeJSON(out, found)
	}
	if len(found) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}
	return writePeripheralTable(out, found, false)
}
