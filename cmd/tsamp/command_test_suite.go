package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs tsamp commands in-process against the sim backend.
// All cmd/tsamp test suites should embed it.
type CommandTestSuite struct {
	suite.Suite
	Dir string
}

// SetupTest resets every flag to its default and speeds the sim backend up.
func (s *CommandTestSuite) SetupTest() {
	s.Dir = s.T().TempDir()
	s.T().Setenv("TSAMP_SIM_TRANSFER_DELAY", "1ms")
	color.NoColor = true
	resetFlags(rootCmd)
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// ExecuteCommand runs tsamp with args and returns stdout and the error.
// Logs go to a separate buffer, available through the returned stderr.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	return out.String(), errOut.String(), err
}

// WriteFile creates name in the test directory and returns its path.
func (s *CommandTestSuite) WriteFile(name string, data []byte) string {
	path := filepath.Join(s.Dir, name)
	s.Require().NoError(os.WriteFile(path, data, 0o644), "writing %s MUST succeed", name)
	return path
}

// Scenario writes a sim scenario and returns its path for --sim-scenario.
func (s *CommandTestSuite) Scenario(yaml string) string {
	return s.WriteFile("scenario.yaml", []byte(yaml))
}
