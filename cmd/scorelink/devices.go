package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/srg/scorelink/internal/device"
)

// devicesCmd groups the device table commands
var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"dev"},
	Short:   "Manage registered devices",
	Long: `List, register, score and remove devices in the local device table.

These commands do not use the radio.`,
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered devices",
	Args:  cobra.NoArgs,
	RunE:  runDevicesList,
}

var devicesAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Register a device",
	Long: `Register a device by address. The class is inferred from the name
(names containing "watch" are watches) unless --class is given.`,
	Example: `  scorelink devices add AA:BB:CC:DD:EE:FF --name "Score Watch" --mine`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDevicesAdd,
}

var devicesRemoveCmd = &cobra.Command{
	Use:     "remove <address>",
	Aliases: []string{"rm"},
	Short:   "Remove a registered device",
	Args:    cobra.ExactArgs(1),
	RunE:    runDevicesRemove,
}

var devicesScoreCmd = &cobra.Command{
	Use:   "score <address> <score>",
	Short: "Set the score of a registered device",
	Args:  cobra.ExactArgs(2),
	RunE:  runDevicesScore,
}

var (
	devicesFormat   string
	devicesAddName  string
	devicesAddClass string
	devicesAddMine  bool
)

func init() {
	devicesListCmd.Flags().StringVarP(&devicesFormat, "format", "f", formatTable, "Output format (table, json)")

	devicesAddCmd.Flags().StringVarP(&devicesAddName, "name", "n", "", "Device name")
	devicesAddCmd.Flags().StringVar(&devicesAddClass, "class", "", "Device class (phone, watch)")
	devicesAddCmd.Flags().BoolVar(&devicesAddMine, "mine", false, "Mark the device as owned")

	devicesCmd.AddCommand(devicesListCmd, devicesAddCmd, devicesRemoveCmd, devicesScoreCmd)
}

func runDevicesList(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(devicesFormat); err != nil {
		return err
	}
	e, err := openEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()
	cmd.SilenceUsage = true

	list, err := e.service.Devices(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if devicesFormat == formatJSON {
		if list == nil {
			list = []device.Peripheral{}
		}
		return writeJSON(out, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No devices registered")
		return nil
	}
	return writePeripheralTable(out, list, true)
}

func runDevicesAdd(cmd *cobra.Command, args []string) error {
	address, err := device.ValidateAddress(args[0])
	if err != nil {
		return err
	}
	p := device.NewPeripheral(strings.ToUpper(address), devicesAddName)
	if devicesAddClass != "" {
		if p.Class, err = device.ParseClass(devicesAddClass); err != nil {
			return err
		}
	}
	p.Owned = devicesAddMine

	e, err := openEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()
	cmd.SilenceUsage = true

	if err := e.service.AddDevice(cmd.Context(), p); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s %s (%s)\n", p.Class, p.ID, p.DisplayName())
	return nil
}

func runDevicesRemove(cmd *cobra.Command, args []string) error {
	address, err := device.ValidateAddress(args[0])
	if err != nil {
		return err
	}
	e, err := openEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()
	cmd.SilenceUsage = true

	address = strings.ToUpper(address)
	if err := e.service.RemoveDevice(cmd.Context(), address); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", address)
	return nil
}

func runDevicesScore(cmd *cobra.Command, args []string) error {
	address, err := device.ValidateAddress(args[0])
	if err != nil {
		return err
	}
	score, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid score %q: %w", args[1], err)
	}
	e, err := openEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.Close()
	cmd.SilenceUsage = true

	address = strings.ToUpper(address)
	if err := e.service.UpdateScore(cmd.Context(), address, score); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Score of %s set to %g\n", address, score)
	return nil
}
