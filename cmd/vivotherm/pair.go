package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/vivotherm/internal/configflow"
	"github.com/srg/vivotherm/internal/discovery"
	"github.com/srg/vivotherm/internal/entry"
)

// pairCmd represents the pair command
var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Discover and pair thermo-hygrometers",
	Long: `Scans for supported devices and walks each new one through pairing.
Devices that are already paired are reported and skipped.

Without a terminal on stdin, --yes is required.`,
	Args: cobra.NoArgs,
	RunE: runPair,
}

var (
	pairDuration time.Duration
	pairName     string
	pairYes      bool
)

func init() {
	pairCmd.Flags().DurationVarP(&pairDuration, "timeout", "t", 0, "Scan duration (default from config, 10s)")
	pairCmd.Flags().StringVar(&pairName, "name", "", "Name for the paired device (only with a single discovery)")
	pairCmd.Flags().BoolVarP(&pairYes, "yes", "y", false, "Accept the suggested names without prompting")
}

// pairPrompter asks for the entry name; an empty answer keeps the suggestion.
type pairPrompter func(suggested, address string) (name string, accept bool, err error)

func runPair(cmd *cobra.Command, _ []string) error {
	interactive := isTerminal(os.Stdin)
	if !interactive && !pairYes {
		return errors.New("stdin is not a terminal: use --yes to pair without prompting")
	}

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true
	defer releaseRadio(cfg, logger)

	store, err := entry.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	transport, err := newScanner(cfg)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	opts := discovery.DefaultOptions()
	opts.Duration = cfg.BLE.ScanTimeout
	if pairDuration > 0 {
		opts.Duration = pairDuration
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	found, err := discover(ctx, discovery.NewScanner(transport, logger), opts)
	if err != nil {
		return err
	}
	if pairName != "" && len(found) > 1 {
		return fmt.Errorf("--name given but %d devices were discovered", len(found))
	}

	prompt := stdinPrompter(cmd.OutOrStdout(), bufio.NewReader(os.Stdin))
	if pairYes {
		prompt = func(string, string) (string, bool, error) { return pairName, true, nil }
	}
	return pairDiscoveries(cmd, store, found, prompt, logger)
}

// pairDiscoveries runs one config flow per discovery.
func pairDiscoveries(cmd *cobra.Command, registry configflow.Registry, found []discovery.Discovery, prompt pairPrompter, logger *logrus.Logger) error {
	out := cmd.OutOrStdout()
	if len(found) == 0 {
		fmt.Fprintln(out, "No supported devices discovered")
		return nil
	}

	paired := 0
	for _, d := range found {
		flow := configflow.New(registry, logger)
		res, err := flow.HandleBluetooth(cmd.Context(), d.Info())
		if errors.Is(err, configflow.ErrAlreadyConfigured) {
			fmt.Fprintf(out, "%s (%s): already configured\n", d.Name, d.Address)
			continue
		}
		if err != nil {
			return err
		}
		if res.Type == configflow.ResultAbort {
			fmt.Fprintf(out, "%s (%s): %s\n", d.Name, d.Address, res.Reason)
			continue
		}

		name, accept, err := prompt(res.Placeholders["name"], res.Placeholders["address"])
		if err != nil {
			return err
		}
		if !accept {
			fmt.Fprintf(out, "%s (%s): skipped\n", d.Name, d.Address)
			continue
		}

		res, err = flow.HandleConfirm(cmd.Context(), &configflow.ConfirmInput{Name: name})
		if errors.Is(err, configflow.ErrAlreadyConfigured) {
			fmt.Fprintf(out, "%s (%s): already configured\n", d.Name, d.Address)
			continue
		}
		if err != nil {
			return err
		}
		paired++
		fmt.Fprintf(out, "Paired %q as entry %s\n", res.Title, res.Entry.ID)
	}

	if paired > 0 {
		fmt.Fprintf(out, "%d device(s) paired\n", paired)
	}
	return nil
}

func stdinPrompter(out io.Writer, in *bufio.Reader) pairPrompter {
	return func(suggested, address string) (string, bool, error) {
		fmt.Fprintf(out, "Pair %s (%s)? [Y/n] ", suggested, address)
		answer, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", false, err
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "", "y", "yes":
		default:
			return "", false, nil
		}
		if pairName != "" {
			return pairName, true, nil
		}

		fmt.Fprintf(out, "Name [%s]: ", suggested)
		name, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", false, err
		}
		return strings.TrimSpace(name), true, nil
	}
}
