package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/scorelink/internal/app"
	"github.com/srg/scorelink/internal/device"
	"github.com/srg/scorelink/internal/groutine"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor [address]",
	Short: "Connect to a device and stream its telemetry",
	Long: `Connect to a device and print the heart rate it reports until Ctrl+C.

Without an address the watch registered with --mine is used. Heart rates
reported by a registered watch are saved to the device table.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

var (
	monitorDuration time.Duration
	monitorRaw      bool
	monitorNoSave   bool
)

const (
	// statusPollInterval is how often monitor checks that the session is alive.
	statusPollInterval = 250 * time.Millisecond
	persistStopTimeout = 2 * time.Second
)

func init() {
	monitorCmd.Flags().DurationVarP(&monitorDuration, "duration", "d", 0, "Stop after this long (0 for indefinite)")
	monitorCmd.Flags().BoolVar(&monitorRaw, "raw", false, "Print every chunk of text received")
	monitorCmd.Flags().BoolVar(&monitorNoSave, "no-save", false, "Do not save heart rates to the device table")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorDuration < 0 {
		return fmt.Errorf("invalid duration %s", monitorDuration)
	}
	e, err := openEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.Close()
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	ctx, cancel := interruptContext(cmd.Context(), out, "monitor")
	defer cancel()
	if monitorDuration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, monitorDuration)
		defer stop()
	}

	var p device.Peripheral
	if len(args) == 1 {
		p, err = e.service.Connect(ctx, strings.ToUpper(strings.TrimSpace(args[0])))
	} else {
		p, err = e.service.ConnectMyWatch(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s (%s). Press Ctrl+C to stop.\n", p.DisplayName(), p.ID)

	if !monitorNoSave {
		// Deferred after e.Close, so it runs first.
		defer persistHeartRates(ctx, e.service, e.logger)()
	}

	err = watchTelemetry(ctx, cmd, e, p.Class)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// persistHeartRates saves watch heart rates in the background. The returned
// stop function cancels the writer and waits for it.
func persistHeartRates(ctx context.Context, service *app.Service, logger *logrus.Logger) (stop func()) {
	task := groutine.Go(ctx, "monitor-persist", func(ctx context.Context) {
		if err := service.Run(ctx); err != nil {
			logger.WithError(err).Warn("Heart rate persistence stopped")
		}
	})
	return func() {
		if !task.Stop(persistStopTimeout) {
			logger.Warn("Heart rate persistence did not stop in time")
		}
	}
}

// watchTelemetry prints feed updates for class until ctx is done or the
// session goes away.
func watchTelemetry(ctx context.Context, cmd *cobra.Command, e *env, class device.Class) error {
	out := cmd.OutOrStdout()
	feed := e.service.Feed()
	manager := e.service.Manager()

	raw := feed.RawValue(class)
	hr := feed.HeartRateValue(class)
	rawCh, hrCh := raw.Changed(), hr.Changed()
	printHeartRate := func() {
		if h := hr.Load(); h.Valid() {
			fmt.Fprintf(out, "%s  HR %d bpm\n", h.At.Format(time.TimeOnly), h.BPM)
		}
	}
	// A reading may have arrived while connecting.
	printHeartRate()

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-rawCh:
			rawCh = raw.Changed()
			if monitorRaw {
				fmt.Fprintf(out, "%s  %q\n", time.Now().Format(time.TimeOnly), raw.Load())
			}

		case <-hrCh:
			hrCh = hr.Changed()
			printHeartRate()

		case <-ticker.C:
			if !manager.CheckStatus(class) {
				return ErrConnectionLost
			}
		}
	}
}
