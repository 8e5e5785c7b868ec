// Command authenticator-helper is the short-lived child process the
// Session Broker spawns for one login attempt. It speaks the framed
// wire protocol over its inherited stdin/stdout and never touches a
// terminal directly — see SPEC_FULL.md §6.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gascity-labs/authbroker/internal/credential"
	"github.com/gascity-labs/authbroker/internal/helper"
	"github.com/gascity-labs/authbroker/internal/helperenv"
	"github.com/gascity-labs/authbroker/internal/launcher"
)

func main() {
	provider, cfg, err := configFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "authenticator-helper: %v\n", err) //nolint:errcheck // best-effort stderr
		os.Exit(1)
	}

	h := helper.New(stdio{os.Stdin, os.Stdout}, provider, cfg, stderrLogger{}, nil)
	h.Run(context.Background())
}

// stdio adapts the process's separate stdin/stdout handles to the
// io.ReadWriter the framed channel expects, the same shape
// internal/broker uses for the parent side of the pipe.
type stdio struct {
	io.Reader
	io.Writer
}

type stderrLogger struct{}

func (stderrLogger) Logf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...) //nolint:errcheck // best-effort stderr
}

// configFromEnv builds the Credential Engine provider and Session
// Launcher config this process needs from the variables
// internal/helperenv documents, set by the broker that spawned it.
func configFromEnv() (credential.Provider, launcher.Config, error) {
	cfg := launcher.Config{
		SessionsDir:    os.Getenv(helperenv.SessionsDir),
		SessionCommand: os.Getenv(helperenv.SessionCommand),
		DefaultPath:    os.Getenv(helperenv.DefaultPath),
		PasswdFile:     os.Getenv(helperenv.PasswdFile),
		ShellsFile:     os.Getenv(helperenv.ShellsFile),
		TestingMode:    os.Getenv(helperenv.TestingMode) == helperenv.BoolTrue,
	}
	if cfg.SessionsDir == "" || cfg.SessionCommand == "" {
		return nil, launcher.Config{}, fmt.Errorf("missing %s/%s in environment", helperenv.SessionsDir, helperenv.SessionCommand)
	}

	if os.Getenv(helperenv.ShadowFallback) == helperenv.BoolTrue {
		shadowFile := os.Getenv(helperenv.ShadowFile)
		if shadowFile == "" {
			shadowFile = "/etc/shadow"
		}
		return credential.NewShadowProvider(shadowFile), cfg, nil
	}

	service := os.Getenv(helperenv.PAMService)
	if service == "" {
		service = "authbroker"
	}
	return credential.NewPAMProvider(service, true), cfg, nil
}
