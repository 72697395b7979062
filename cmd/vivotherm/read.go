package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/vivotherm/internal/catalog"
	"github.com/srg/vivotherm/internal/coordinator"
	"github.com/srg/vivotherm/internal/entry"
	"github.com/srg/vivotherm/internal/protocol"
	"github.com/srg/vivotherm/internal/sensor"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address>",
	Short: "Read a thermo-hygrometer once",
	Long: `Connects to the device, requests one status frame and prints temperature,
humidity and vapor pressure deficit for both probes.

Examples:
  # Read with the default frame profile
  vivotherm read C0:FF:EE:00:00:01

  # Read a device running the older firmware
  vivotherm read C0:FF:EE:00:00:01 --profile thb1s-v1

  # Machine-readable output
  vivotherm read C0:FF:EE:00:00:01 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

var (
	readProfile        string
	readFormat         string
	readTimeout        time.Duration
	readConnectTimeout time.Duration
)

func init() {
	readCmd.Flags().StringVar(&readProfile, "profile", "", fmt.Sprintf("Frame profile (%s)", strings.Join(protocol.ProfileNames(), ", ")))
	readCmd.Flags().StringVarP(&readFormat, "format", "f", "text", "Output format (text, json)")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 0, "Notification timeout (default from config, 1s)")
	readCmd.Flags().DurationVar(&readConnectTimeout, "connect-timeout", 0, "Connection timeout (default from config, 30s)")
}

func runRead(cmd *cobra.Command, args []string) error {
	address := strings.ToUpper(args[0])
	if readFormat != "text" && readFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [text json]", readFormat)
	}

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	if readProfile != "" {
		cfg.BLE.Profile = readProfile
	}
	profile, err := cfg.Profile()
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true
	defer releaseRadio(cfg, logger)

	opts := cfg.PollOptions()
	if readTimeout > 0 {
		opts.ReadTimeout = readTimeout
	}
	if readConnectTimeout > 0 {
		opts.ConnectTimeout = readConnectTimeout
	}

	// A transient entry; nothing is persisted.
	e := entry.Entry{
		ID:    "read",
		Title: address,
		Data:  entry.DeviceIdentity{Name: address, DiscoveryAddress: address},
	}
	c := coordinator.New(e, newReaders(cfg, profile, logger)(e), profile, opts, nil, logger)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	progress := NewProgressPrinter(fmt.Sprintf("Reading %s", address), "Connecting", "Done")
	progress.Start()
	err = c.Refresh(ctx)
	progress.Stop()
	if err != nil {
		return err
	}

	if readFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), c.Snapshot())
	}
	printEntities(cmd.OutOrStdout(), sensor.BuildEntities(e, c))
	return nil
}

// printEntities prints one block per probe in catalog order, an unavailable probe
// on a single line.
func printEntities(out io.Writer, entities []*sensor.Entity) {
	label := color.New(color.Bold)
	dim := color.New(color.Faint)

	for _, probe := range catalog.ProbeTypes() {
		var block []*sensor.Entity
		for _, e := range entities {
			if e.Probe == probe {
				block = append(block, e)
			}
		}
		if len(block) == 0 || !block[0].Available() {
			fmt.Fprintf(out, "%s: %s\n", label.Sprint(catalog.ProbeLabel(probe)), dim.Sprint("unplugged"))
			continue
		}
		fmt.Fprintf(out, "%s:\n", label.Sprint(catalog.ProbeLabel(probe)))
		for _, e := range block {
			v, _ := e.Value()
			fmt.Fprintf(out, "  %-24s %.*f %s\n", e.Meta.Name, e.Meta.DisplayPrecision, v, e.Meta.Unit)
		}
	}
}
