package desktopentry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveLiteralCommand(t *testing.T) {
	got, err := Resolve("/unused", "/usr/bin/xterm")
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}
	want := Descriptor{Name: "/usr/bin/xterm", Command: "/usr/bin/xterm"}
	if got != want {
		t.Errorf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestResolveDesktopFile(t *testing.T) {
	dir := t.TempDir()
	content := "[Desktop Entry]\nType=XSession\nExec=/usr/bin/startplasma-x11\nName=Plasma\n"
	if err := os.WriteFile(filepath.Join(dir, "plasma.desktop"), []byte(content), 0o644); err != nil {
		t.Fatalf("write desktop entry: %v", err)
	}

	got, err := Resolve(dir, "plasma.desktop")
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}
	want := Descriptor{Name: "plasma", Command: "/usr/bin/startplasma-x11"}
	if got != want {
		t.Errorf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestResolveDesktopFileMissingExec(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bare.desktop"), []byte("[Desktop Entry]\n"), 0o644); err != nil {
		t.Fatalf("write desktop entry: %v", err)
	}

	_, err := Resolve(dir, "bare.desktop")
	if err == nil {
		t.Error("Resolve() with no Exec= line = nil error, want error")
	}
}

func TestResolveDesktopFileMissing(t *testing.T) {
	_, err := Resolve(t.TempDir(), "nonexistent.desktop")
	if err == nil {
		t.Error("Resolve() for missing file = nil error, want error")
	}
}
