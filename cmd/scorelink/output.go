package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/srg/scorelink/internal/device"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format '%s': must be one of [%s %s]", format, formatTable, formatJSON)
	}
}

// colorEnabled reports whether w is a terminal that should get colour.
func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) && !color.NoColor
}

// swatch renders a two-cell block in the peripheral's colour, or its hex
// value when colour is off.
func swatch(c device.ARGB, enabled bool) string {
	if !enabled {
		return c.Hex()
	}
	r, g, b := c.RGB()
	block := color.RGB(int(r), int(g), int(b))
	block.EnableColor()
	return block.Sprint("██") + " " + c.Hex()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writePeripheralTable prints peripherals; stored tables include score and
// heart rate.
func writePeripheralTable(w io.Writer, list []device.Peripheral, stored bool) error {
	colors := colorEnabled(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if stored {
		fmt.Fprintln(tw, "NAME\tADDRESS\tCLASS\tMINE\tSCORE\tHEART RATE\tSTATUS\tCOLOR")
	} else {
		fmt.Fprintln(tw, "NAME\tADDRESS\tCLASS\tCOLOR")
	}
	fmt.Fprintln(tw, strings.Repeat("-", 80))

	for _, p := range list {
		name := truncate(p.DisplayName(), 24)
		if !stored {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, p.ID, p.Class, swatch(p.Color, colors))
			continue
		}
		mine := ""
		if p.Owned {
			mine = "yes"
		}
		status := p.Status.String()
		if p.LiveConnected {
			status = "live"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%.0f\t%s\t%s\n",
			name, p.ID, p.Class, mine, p.Score, p.HeartRate, status, swatch(p.Color, colors))
	}
	return tw.Flush()
}
