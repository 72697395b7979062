//go:build test

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs commands against the simulated device with a throwaway store.
// All cmd/vivotherm test suites should embed it.
type CommandTestSuite struct {
	suite.Suite
	ConfigPath string
	StorePath  string
}

// SetupTest writes a fresh config pointing at a temporary store.
func (s *CommandTestSuite) SetupTest() {
	dir := s.T().TempDir()
	s.StorePath = filepath.Join(dir, "entries.db")
	s.ConfigPath = filepath.Join(dir, "vivotherm.yaml")
	content := fmt.Sprintf("log_level: error\nstore:\n  path: %s\nble:\n  simulate: true\n  poll_interval: 50ms\n  setup_retry: 50ms\n", s.StorePath)
	s.Require().NoError(os.WriteFile(s.ConfigPath, []byte(content), 0o600), "config write MUST succeed")
}

// CaptureStdout executes fn while capturing stdout, returns captured output.
// Stdout is restored even if fn panics.
func (s *CommandTestSuite) CaptureStdout(fn func()) string {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	s.Require().NoError(err, "pipe creation MUST succeed")
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	fn()

	w.Close()
	out, _ := io.ReadAll(r)
	return string(out)
}

// ExecuteCommand runs a cobra command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// RunCLI executes the root command with the suite config and --simulate.
func (s *CommandTestSuite) RunCLI(args ...string) (string, error) {
	args = append(args, "--config", s.ConfigPath, "--simulate")
	return s.ExecuteCommand(rootCmd, args...)
}
