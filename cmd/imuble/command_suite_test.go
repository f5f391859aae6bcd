package main

import (
	"bytes"
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs commands through rootCmd with fresh flag state.
// Every cmd/imuble test suite embeds it.
type CommandTestSuite struct {
	suite.Suite
	noColor bool
}

// SetupSuite disables colour so rendered output is stable.
func (s *CommandTestSuite) SetupSuite() {
	s.noColor = color.NoColor
	color.NoColor = true
}

// TearDownSuite restores the colour setting.
func (s *CommandTestSuite) TearDownSuite() {
	color.NoColor = s.noColor
}

// SetupTest resets every flag of every command to its default and drops the
// context left behind by the previous run.
func (s *CommandTestSuite) SetupTest() {
	resetFlags(rootCmd)
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	// Execute copies its context into subcommands only while theirs is unset.
	cmd.SetContext(nil) //nolint:staticcheck
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// ExecuteCommand runs rootCmd with args and returns what it wrote to stdout
// and stderr.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (stdout, stderr string, err error) {
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	err = rootCmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}
