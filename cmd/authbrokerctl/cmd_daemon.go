package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/gascity-labs/authbroker/internal/config"
	"github.com/gascity-labs/authbroker/internal/fsys"
)

// newDaemonCmd creates the "authbrokerctl daemon" command group with
// run, start, stop, and status subcommands.
func newDaemonCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the authbroker daemon process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newDaemonRunCmd(stdout, stderr),
		newDaemonStartCmd(stdout, stderr),
		newDaemonStopCmd(stdout, stderr),
		newDaemonStatusCmd(stdout, stderr),
	)
	return cmd
}

// newDaemonRunCmd creates "daemon run" — foreground, with log-file tee.
func newDaemonRunCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doDaemonRun(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

// doDaemonRun tees output to both stdout and the configured log file (if
// any) before handing off to runController.
func doDaemonRun(stdout, stderr io.Writer) int {
	path := resolveConfigPath()
	cfg, err := config.Load(fsys.OSFS{}, path)
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon run: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	out, errW := stdout, stderr
	if cfg.Daemon.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Daemon.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(stderr, "authbrokerctl daemon run: opening log file: %v\n", err) //nolint:errcheck // best-effort stderr
			return 1
		}
		defer logFile.Close() //nolint:errcheck // best-effort cleanup
		out = io.MultiWriter(stdout, logFile)
		errW = io.MultiWriter(stderr, logFile)
	}

	return runController(cmdContext(), path, out, errW)
}

// newDaemonStartCmd creates "daemon start" — background fork of
// "daemon run".
func newDaemonStartCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doDaemonStart(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func doDaemonStart(stdout, stderr io.Writer) int {
	path := resolveConfigPath()
	cfg, err := config.Load(fsys.OSFS{}, path)
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon start: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	// Pre-check: fail fast if a daemon is already running.
	lock, err := acquireControllerLock(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon start: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	lock.Unlock() //nolint:errcheck // releasing pre-check lock

	exePath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon start: finding executable: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	child := exec.Command(exePath, "--config", path, "daemon", "run")
	child.SysProcAttr = daemonSysProcAttr()
	child.Stdin = nil
	child.Stdout = nil
	child.Stderr = nil
	if err := child.Start(); err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon start: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	childPID := child.Process.Pid

	time.Sleep(200 * time.Millisecond)
	pid := readPIDFile(cfg)
	if pid != 0 && pid != childPID {
		fmt.Fprintf(stderr, "authbrokerctl daemon start: PID mismatch (expected %d, got %d)\n", childPID, pid) //nolint:errcheck // best-effort stderr
		return 1
	}

	fmt.Fprintf(stdout, "Daemon started (PID %d)\n", childPID) //nolint:errcheck // best-effort stdout
	return 0
}

// newDaemonStopCmd creates "daemon stop".
func newDaemonStopCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doDaemonStop(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func doDaemonStop(stdout, stderr io.Writer) int {
	cfg, err := config.Load(fsys.OSFS{}, resolveConfigPath())
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon stop: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}
	if _, err := sendControlCommand(cfg, "stop"); err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon stop: no daemon is running\n") //nolint:errcheck // best-effort stderr
		return 1
	}
	fmt.Fprintln(stdout, "Daemon stopped") //nolint:errcheck // best-effort stdout
	return 0
}

// newDaemonStatusCmd creates "daemon status".
func newDaemonStatusCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if doDaemonStatus(stdout, stderr) != 0 {
				return errExit
			}
			return nil
		},
	}
}

func doDaemonStatus(stdout, stderr io.Writer) int {
	cfg, err := config.Load(fsys.OSFS{}, resolveConfigPath())
	if err != nil {
		fmt.Fprintf(stderr, "authbrokerctl daemon status: %v\n", err) //nolint:errcheck // best-effort stderr
		return 1
	}

	pid := readPIDFile(cfg)
	if pid == 0 || !isDaemonAlive(pid) {
		if pid != 0 {
			os.Remove(pidPath(cfg)) //nolint:errcheck // best-effort cleanup
		}
		fmt.Fprintln(stdout, "Daemon is not running") //nolint:errcheck // best-effort stdout
		return 1
	}

	fmt.Fprintf(stdout, "Daemon is running (PID %d)\n", pid) //nolint:errcheck // best-effort stdout
	return 0
}
