package main

import (
	"testing"

	"github.com/gascity-labs/authbroker/internal/credential"
	"github.com/gascity-labs/authbroker/internal/helperenv"
)

func setCommonEnv(t *testing.T) {
	t.Helper()
	t.Setenv(helperenv.SessionsDir, "/usr/share/xsessions")
	t.Setenv(helperenv.SessionCommand, "/usr/bin/authbroker-session")
}

func TestConfigFromEnvPAMDefault(t *testing.T) {
	setCommonEnv(t)

	provider, cfg, err := configFromEnv()
	if err != nil {
		t.Fatalf("configFromEnv: %v", err)
	}
	if _, ok := provider.(*credential.PAMProvider); !ok {
		t.Errorf("provider = %T, want *credential.PAMProvider", provider)
	}
	if cfg.SessionsDir != "/usr/share/xsessions" {
		t.Errorf("SessionsDir = %q", cfg.SessionsDir)
	}
}

func TestConfigFromEnvShadowFallback(t *testing.T) {
	setCommonEnv(t)
	t.Setenv(helperenv.ShadowFallback, helperenv.BoolTrue)
	t.Setenv(helperenv.ShadowFile, "/tmp/shadow")

	provider, _, err := configFromEnv()
	if err != nil {
		t.Fatalf("configFromEnv: %v", err)
	}
	if _, ok := provider.(*credential.ShadowProvider); !ok {
		t.Errorf("provider = %T, want *credential.ShadowProvider", provider)
	}
}

func TestConfigFromEnvMissingRequired(t *testing.T) {
	if _, _, err := configFromEnv(); err == nil {
		t.Fatal("configFromEnv with no environment set: want error, got nil")
	}
}

func TestConfigFromEnvTestingMode(t *testing.T) {
	setCommonEnv(t)
	t.Setenv(helperenv.TestingMode, helperenv.BoolTrue)

	_, cfg, err := configFromEnv()
	if err != nil {
		t.Fatalf("configFromEnv: %v", err)
	}
	if !cfg.TestingMode {
		t.Error("TestingMode = false, want true")
	}
}
