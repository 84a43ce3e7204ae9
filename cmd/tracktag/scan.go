package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/tracktag/internal/bridge"
	"github.com/srg/tracktag/internal/discovery"
	"github.com/srg/tracktag/internal/lifecycle"
	"github.com/srg/tracktag/internal/ringchan"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Resolve permissions, enable Bluetooth and scan for BLE tags",
	Long: `Run the full enable chain and scan for Bluetooth Low Energy devices.

Missing permissions are requested first, then Bluetooth is enabled, then the
scan cycle starts and is restarted every scan period. Discovered devices are
summarized when the scan ends.`,
	Example: `  tracktag scan --simulate -d 5s
  tracktag scan --watch --duration 0
  tracktag scan --format json`,
	RunE: runScan,
}

var (
	scanDuration   time.Duration
	scanFormat     string
	scanWatch      bool
	scanBackground bool
)

const defaultScanDuration = 10 * time.Second

// scanEventBuffer bounds console events queued between the manager and the printer.
const scanEventBuffer = 1024

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", defaultScanDuration, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Print each newly discovered device as it appears")
	scanCmd.Flags().BoolVarP(&scanBackground, "background", "b", false, "Scan under a foreground notification")
}

type scanOptions struct {
	duration   time.Duration
	format     string
	watch      bool
	background bool
}

func runScan(cmd *cobra.Command, args []string) error {
	// Validate format parameter
	validFormats := []string{"table", "json"}
	isValidFormat := false
	for _, format := range validFormats {
		if scanFormat == format {
			isValidFormat = true
			break
		}
	}
	if !isValidFormat {
		return fmt.Errorf("invalid format '%s': must be one of %v", scanFormat, validFormats)
	}

	env, err := newRuntime(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return scan(ctx, env, scanOptions{
		duration:   scanDuration,
		format:     scanFormat,
		watch:      scanWatch,
		background: scanBackground || env.cfg.Background.Enabled,
	}, cmd.OutOrStdout())
}

// scan drives the enable chain and collects results until the duration
// elapses or ctx is cancelled. Denials end the scan with an error.
func scan(ctx context.Context, env *runtimeEnv, opts scanOptions, out io.Writer) error {
	events := bridge.NewEventChannel("scan")
	queue := ringchan.New[bridge.Event](scanEventBuffer)
	sub := events.Listen(bridge.EventHandler{
		OnEvent: func(ev bridge.Event) {
			if queue.Send(ev) {
				env.logger.WithField("event", ev.Name).Debug("Console event queue full, dropped oldest")
			}
		},
		OnDone: queue.Close,
	})
	defer sub.Cancel()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	mgr, err := env.newManager(runCtx, opts.background, events)
	if err != nil {
		env.close(nil)
		return err
	}
	defer env.close(mgr)

	var progress *ProgressPrinter
	if opts.duration > 0 {
		progress = NewCountdownProgressPrinter(out, "Scanning for BLE devices", "Scanning", opts.duration)
	} else {
		progress = NewProgressPrinter(out, "Scanning for BLE devices", "Scanning")
	}
	defer progress.Stop()

	// The duration counts from the first scanning moment.
	var (
		deadline <-chan time.Time
		timer    *time.Timer
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	startScanning := func() {
		if timer != nil || deadline != nil {
			return
		}
		if opts.duration > 0 {
			timer = time.NewTimer(opts.duration)
			deadline = timer.C
		} else {
			deadline = make(chan time.Time)
		}
		progress.Start()
	}

	status, err := mgr.RequestEnableBluetooth(ctx)
	if err != nil {
		return err
	}
	env.logger.WithField("status", status).Debug("Enable chain answered")
	if status == lifecycle.StatusEnabled {
		startScanning()
	}

	newDevice := color.New(color.FgGreen)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			break loop
		case ev, ok := <-queue.C():
			if !ok {
				break loop
			}
			switch ev.Name {
			case lifecycle.EventPermissionsDenied:
				return ErrPermissionsDenied
			case lifecycle.EventBluetoothDenied:
				return ErrBluetoothDenied
			case lifecycle.EventBluetoothEnabled:
				startScanning()
			case lifecycle.EventScanStopped:
				if stopped, ok := ev.Payload.(lifecycle.ScanStopped); ok {
					return bridge.NewChannelError(stopped.Code, stopped.Reason)
				}
				return errors.New("scan stopped")
			case lifecycle.EventDeviceDiscovered:
				startScanning()
				d, ok := ev.Payload.(lifecycle.DiscoveredDevice)
				if opts.watch && ok && d.New {
					progress.Println(newDevice.Sprintf("+ %s  %s  %d dBm", d.Address, displayName(d.Name), d.RSSI))
				}
			}
		}
	}

	progress.Stop()
	return displayDevices(out, mgr.Registry().Snapshot(), opts.format)
}

func displayName(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}

func displayDevices(out io.Writer, devices []discovery.Device, format string) error {
	if format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(devices)
	}

	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSEEN\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 72))

	for _, d := range devices {
		name := displayName(d.Name)
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		lastSeen := time.Since(d.LastSeen).Truncate(time.Second)
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%d\t%s ago\n", name, d.Address, d.RSSI, d.Seen, lastSeen)
	}
	return w.Flush()
}
