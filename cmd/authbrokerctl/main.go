// Command authbrokerctl is the authbroker daemon's control surface: it
// runs the broker(s) described by a TOML config file, manages the
// daemon process (foreground, background, stop, status), and offers
// read-only config/session inspection.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit is a sentinel error returned by cobra RunE functions to signal
// non-zero exit. The command has already written its own error to stderr.
var errExit = errors.New("exit")

// configFlag holds the value of the --config persistent flag.
var configFlag string

const defaultConfigPath = "/etc/authbroker/authbroker.toml"

// run executes the authbrokerctl CLI with the given args, writing output
// to stdout and errors to stderr. Returns the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

// newRootCmd creates the root cobra command with all subcommands.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "authbrokerctl",
		Short:         "Control surface for the authbroker display-manager authentication daemon",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			fmt.Fprintf(stderr, "authbrokerctl: unknown command %q\n", args[0]) //nolint:errcheck // best-effort stderr
			return errExit
		},
	}
	root.PersistentFlags().StringVar(&configFlag, "config", defaultConfigPath, "path to the authbroker TOML config file")
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newDaemonCmd(stdout, stderr),
		newConfigCmd(stdout, stderr),
		newSessionCmd(stdout, stderr),
	)
	return root
}

// resolveConfigPath returns the --config flag value, or the default if unset.
func resolveConfigPath() string {
	if configFlag != "" {
		return configFlag
	}
	return defaultConfigPath
}
