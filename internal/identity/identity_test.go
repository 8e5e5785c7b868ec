package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLookupFound(t *testing.T) {
	dir := t.TempDir()
	passwd := writeFile(t, dir, "passwd", "alice:x:1000:1000:Alice:/home/alice:/bin/bash\n")
	shells := writeFile(t, dir, "shells", "/bin/sh\n/bin/bash\n")

	got, err := Lookup(passwd, shells, "alice")
	if err != nil {
		t.Fatalf("Lookup() = %v", err)
	}
	want := UserIdentity{Name: "alice", UID: 1000, GID: 1000, Home: "/home/alice", Shell: "/bin/bash"}
	if got != want {
		t.Errorf("Lookup() = %+v, want %+v", got, want)
	}
}

func TestLookupEmptyShellFallsBackToShellsFile(t *testing.T) {
	dir := t.TempDir()
	passwd := writeFile(t, dir, "passwd", "bob:x:1001:1001:Bob:/home/bob:\n")
	shells := writeFile(t, dir, "shells", "# comment\n/bin/dash\n")

	got, err := Lookup(passwd, shells, "bob")
	if err != nil {
		t.Fatalf("Lookup() = %v", err)
	}
	if got.Shell != "/bin/dash" {
		t.Errorf("Shell = %q, want /bin/dash", got.Shell)
	}
}

func TestLookupEmptyShellFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	passwd := writeFile(t, dir, "passwd", "carol:x:1002:1002:Carol:/home/carol:\n")

	got, err := Lookup(passwd, filepath.Join(dir, "missing-shells"), "carol")
	if err != nil {
		t.Fatalf("Lookup() = %v", err)
	}
	if got.Shell != defaultShell {
		t.Errorf("Shell = %q, want %q", got.Shell, defaultShell)
	}
}

func TestLookupUnknownUser(t *testing.T) {
	dir := t.TempDir()
	passwd := writeFile(t, dir, "passwd", "alice:x:1000:1000:Alice:/home/alice:/bin/bash\n")

	_, err := Lookup(passwd, "", "ghost")
	if err == nil {
		t.Error("Lookup() for unknown user = nil error, want error")
	}
}

func TestXAuthorityAndXSessionErrorsPaths(t *testing.T) {
	u := UserIdentity{Home: "/home/alice"}
	if got, want := u.XAuthorityPath(), "/home/alice/.Xauthority"; got != want {
		t.Errorf("XAuthorityPath() = %q, want %q", got, want)
	}
	if got, want := u.XSessionErrorsPath(), "/home/alice/.xsession-errors"; got != want {
		t.Errorf("XSessionErrorsPath() = %q, want %q", got, want)
	}
}
