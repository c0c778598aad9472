package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <address> <text>",
	Short: "Connect to a device and send text",
	Long: `Connect to a device, write text to its serial stream and disconnect.

A newline is appended unless --no-newline is given. Escape sequences such as
\n and \t in the text are expanded.`,
	Example: `  scorelink send AA:BB:CC:DD:EE:FF "SCORE:12"`,
	Args:    cobra.ExactArgs(2),
	RunE:    runSend,
}

var sendNoNewline bool

func init() {
	sendCmd.Flags().BoolVar(&sendNoNewline, "no-newline", false, "Do not append a newline")
}

var escapeReplacer = strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t", `\\`, `\`)

func runSend(cmd *cobra.Command, args []string) error {
	address := strings.ToUpper(strings.TrimSpace(args[0]))
	text := escapeReplacer.Replace(args[1])
	if !sendNoNewline {
		text += "\n"
	}

	e, err := openEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()
	cmd.SilenceUsage = true

	ctx, cancel := interruptContext(cmd.Context(), cmd.OutOrStdout(), "send")
	defer cancel()

	p, err := e.service.Connect(ctx, address)
	if err != nil {
		return err
	}
	if !e.service.Manager().Send([]byte(text), p.Class) {
		return fmt.Errorf("%w: %s", ErrSendFailed, p.ID)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %d bytes to %s\n", len(text), p.DisplayName())
	return nil
}
