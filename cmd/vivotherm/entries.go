package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/srg/vivotherm/internal/entry"
)

// entriesCmd groups the entry management commands
var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Manage paired devices",
}

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List paired devices",
	Args:  cobra.NoArgs,
	RunE:  runEntriesList,
}

var entriesRemoveCmd = &cobra.Command{
	Use:   "remove <entry-id>",
	Short: "Remove a paired device",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntriesRemove,
}

var entriesFormat string

func init() {
	entriesListCmd.Flags().StringVarP(&entriesFormat, "format", "f", "table", "Output format (table, json)")
	entriesCmd.AddCommand(entriesListCmd)
	entriesCmd.AddCommand(entriesRemoveCmd)
}

// openStore loads the configuration and opens the entry store.
func openStore(cmd *cobra.Command) (*entry.Store, error) {
	cfg, _, err := configureLogger(cmd)
	if err != nil {
		return nil, err
	}
	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true
	return entry.Open(cfg.Store)
}

func runEntriesList(cmd *cobra.Command, _ []string) error {
	if entriesFormat != "table" && entriesFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", entriesFormat)
	}
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if entriesFormat == "json" {
		if entries == nil {
			entries = []entry.Entry{}
		}
		return writeJSON(cmd.OutOrStdout(), entries)
	}
	renderEntries(cmd.OutOrStdout(), entries)
	return nil
}

func runEntriesRemove(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed entry %s\n", args[0])
	return nil
}

var entryColumns = []struct {
	title string
	width int
	value func(e entry.Entry) string
}{
	{"ID", 34, func(e entry.Entry) string { return e.ID }},
	{"NAME", 24, func(e entry.Entry) string { return e.Title }},
	{"ADDRESS", 19, func(e entry.Entry) string { return e.Address() }},
	{"MODEL", 16, func(e entry.Entry) string { return e.Data.DiscoveryName }},
	{"PAIRED", 20, func(e entry.Entry) string { return e.CreatedAt.Local().Format("2006-01-02 15:04:05") }},
}

// renderEntries prints entries as a fixed-width table.
func renderEntries(out io.Writer, entries []entry.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No paired devices")
		return
	}

	header := lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	cell := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	rule := lipgloss.NewStyle().Foreground(lipgloss.Color("237"))

	row := func(style lipgloss.Style, values func(i int) string) string {
		cells := make([]string, len(entryColumns))
		for i, col := range entryColumns {
			cells[i] = style.Width(col.width).MaxWidth(col.width).Render(values(i))
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
	}

	lines := []string{row(header, func(i int) string { return entryColumns[i].title })}
	width := 0
	for _, col := range entryColumns {
		width += col.width
	}
	lines = append(lines, rule.Render(strings.Repeat("─", width)))
	for _, e := range entries {
		lines = append(lines, row(cell, func(i int) string { return entryColumns[i].value(e) }))
	}
	fmt.Fprintln(out, lipgloss.JoinVertical(lipgloss.Left, lines...))
}
