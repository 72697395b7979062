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
	"github.com/spf13/cobra"

	"github.com/srg/vivotherm/internal/catalog"
	"github.com/srg/vivotherm/internal/discovery"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for thermo-hygrometers",
	Long: `Listen for Bluetooth Low Energy advertisements and list nearby devices.

Supported devices are marked; use --all to include every advertiser.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanAll      bool
	scanAllow    []string
	scanBlock    []string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "timeout", "t", 0, "Scan duration (default from config, 10s)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Include devices that are not supported")
	scanCmd.Flags().StringSliceVar(&scanAllow, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlock, "block", nil, "Hide devices with these addresses")
}

// signalContext returns a context cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// discover runs one scan with the progress printer attached.
func discover(ctx context.Context, s *discovery.Scanner, opts *discovery.Options) ([]discovery.Discovery, error) {
	progress := NewCountdownProgressPrinter("Scanning for devices", "Scanning", opts.Duration, "Processing results")
	progress.Start()
	defer progress.Stop()

	return s.Scan(ctx, opts, progress.Callback())
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true
	defer releaseRadio(cfg, logger)

	transport, err := newScanner(cfg)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	opts := discovery.DefaultOptions()
	opts.Duration = cfg.BLE.ScanTimeout
	if scanDuration > 0 {
		opts.Duration = scanDuration
	}
	opts.SupportedOnly = !scanAll
	opts.AllowList = scanAllow
	opts.BlockList = scanBlock

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	found, err := discover(ctx, discovery.NewScanner(transport, logger), opts)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if scanFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), found)
	}
	return displayDiscoveries(cmd.OutOrStdout(), found)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func displayDiscoveries(out io.Writer, found []discovery.Discovery) error {
	if len(found) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	supported := color.New(color.FgGreen)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tMODEL")
	fmt.Fprintln(w, strings.Repeat("-", 64))

	for _, d := range found {
		name := d.Name
		if name == "" {
			name = "(unknown)"
		}
		model := "-"
		if dt, ok := catalog.LookupDevice(d.Name); ok {
			model = supported.Sprint(dt.Name)
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, d.Address, d.RSSI, model)
	}
	return w.Flush()
}
