package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gascity-labs/authbroker/internal/config"
	"github.com/gascity-labs/authbroker/internal/fsys"
)

// newSessionCmd creates the "authbrokerctl session" command group.
func newSessionCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect sessions the running daemon has open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newSessionListCmd(stdout, stderr))
	return cmd
}

// newSessionListCmd creates "authbrokerctl session list".
func newSessionListCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active sessions, one per seat that has one",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doSessionList(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func doSessionList(stdout, stderr io.Writer) int {
	cfg, err := config.Load(fsys.OSFS{}, resolveConfigPath())
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl session list: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	lines, err := sendControlCommand(cfg, "list")
	if err != nil {
		fmt.Fprintln(stderr, "authbrokerctl session list: no daemon is running") //nolint:errcheck // best-effort stderr
		return 1
	}
	if len(lines) == 0 {
		fmt.Fprintln(stdout, "No active sessions") //nolint:errcheck // best-effort stdout
		return 0
	}
	fmt.Fprintln(stdout, "SEAT\tSESSION\tUSER") //nolint:errcheck // best-effort stdout
	for _, line := range lines {
		fmt.Fprintln(stdout, line) //nolint:errcheck // best-effort stdout
	}
	return 0
}
