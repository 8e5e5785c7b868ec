package main

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"authbrokerctl": func() { os.Exit(run(os.Args[1:], os.Stdout, os.Stderr)) },
	})
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata",
	})
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"bogus"}, &stdout, &stderr)
	if code != 1 {
		t.Errorf("run([bogus]) = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "unknown command") {
		t.Errorf("stderr = %q, want mention of unknown command", stderr.String())
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(nil, &stdout, &stderr)
	if code != 0 {
		t.Errorf("run(nil) = %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "authbrokerctl") {
		t.Errorf("stdout = %q, want usage mentioning authbrokerctl", stdout.String())
	}
}

func TestConfigValidateSchema(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"config", "validate", "--schema"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("run([config validate --schema]) = %d, stderr=%q", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "\"title\"") {
		t.Errorf("stdout missing schema title field: %q", stdout.String())
	}
}

func TestConfigValidateMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", "/nonexistent/authbroker.toml", "config", "validate"}, &stdout, &stderr)
	if code != 1 {
		t.Errorf("run([config validate]) on missing file = %d, want 1", code)
	}
}

func TestDaemonStatusNotRunning(t *testing.T) {
	dir := t.TempDir()
	cfgPath := dir + "/authbroker.toml"
	if err := os.WriteFile(cfgPath, []byte("[daemon]\npid_file = \""+dir+"/authbroker.pid\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", cfgPath, "daemon", "status"}, &stdout, &stderr)
	if code != 1 {
		t.Errorf("run([daemon status]) = %d, stderr=%q", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "not running") {
		t.Errorf("stdout = %q, want mention of 'not running'", stdout.String())
	}
}

func TestSessionListNoDaemon(t *testing.T) {
	dir := t.TempDir()
	cfgPath := dir + "/authbroker.toml"
	if err := os.WriteFile(cfgPath, []byte("[daemon]\npid_file = \""+dir+"/authbroker.pid\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", cfgPath, "session", "list"}, &stdout, &stderr)
	if code != 1 {
		t.Errorf("run([session list]) = %d, stderr=%q", code, stderr.String())
	}
}
