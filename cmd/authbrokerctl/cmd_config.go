package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gascity-labs/authbroker/internal/config"
	"github.com/gascity-labs/authbroker/internal/fsys"
)

// newConfigCmd creates the "authbrokerctl config" command group.
func newConfigCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the authbroker configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigValidateCmd(stdout, stderr))
	return cmd
}

// newConfigValidateCmd creates the "authbrokerctl config validate" subcommand.
func newConfigValidateCmd(stdout, stderr io.Writer) *cobra.Command {
	var schema bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file, or print its JSON Schema",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doConfigValidate(schema, stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&schema, "schema", false, "print the config's JSON Schema instead of validating a file")
	return cmd
}

func doConfigValidate(schema bool, stdout, stderr io.Writer) int {
	if schema {
		data, err := json.MarshalIndent(config.GenerateSchema(), "", "  ")
		if err != nil {
			fmt.Fprintf(stderr, "authbrokerctl config validate: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
		fmt.Fprintln(stdout, string(data)) //nolint:errcheck // best-effort stdout
		return 0
	}

	path := resolveConfigPath()
	cfg, err := config.Load(fsys.OSFS{}, path)
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl config validate: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "authbrokerctl config validate: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintf(stdout, "%s: valid (%d seat(s))\n", path, len(cfg.Seats)) //nolint:errcheck // best-effort stdout
	return 0
}
