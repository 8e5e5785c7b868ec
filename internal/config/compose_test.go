package config

import (
	"testing"

	"github.com/gascity-labs/authbroker/internal/fsys"
)

func TestLoadWithOverridesAppendsNewSeat(t *testing.T) {
	fake := fsys.NewFake()
	fake.Files["/base.toml"] = []byte(`
[[seats]]
name = "seat0"
sessions_dir = "/a"
session_command = "/b"
`)
	fake.Files["/override.toml"] = []byte(`
[[seats]]
name = "seat1"
sessions_dir = "/c"
session_command = "/d"
`)

	cfg, _, err := LoadWithOverrides(fake, "/base.toml", "/override.toml")
	if err != nil {
		t.Fatalf("LoadWithOverrides() = %v", err)
	}
	if len(cfg.Seats) != 2 {
		t.Fatalf("len(Seats) = %d, want 2", len(cfg.Seats))
	}
}

func TestLoadWithOverridesMergesExistingSeatField(t *testing.T) {
	fake := fsys.NewFake()
	fake.Files["/base.toml"] = []byte(`
[[seats]]
name = "seat0"
sessions_dir = "/a"
session_command = "/b"
`)
	fake.Files["/override.toml"] = []byte(`
[[seats]]
name = "seat0"
default_path = "/usr/local/bin"
`)

	cfg, prov, err := LoadWithOverrides(fake, "/base.toml", "/override.toml")
	if err != nil {
		t.Fatalf("LoadWithOverrides() = %v", err)
	}
	if cfg.Seats[0].DefaultPath != "/usr/local/bin" {
		t.Errorf("DefaultPath = %q, want /usr/local/bin", cfg.Seats[0].DefaultPath)
	}
	if cfg.Seats[0].SessionsDir != "/a" {
		t.Errorf("SessionsDir = %q, want unchanged /a", cfg.Seats[0].SessionsDir)
	}
	if src := prov.Seats["seat0.default_path"]; src != "/override.toml" {
		t.Errorf("provenance for default_path = %q, want /override.toml", src)
	}
}

func TestLoadWithOverridesWarnsOnCollision(t *testing.T) {
	fake := fsys.NewFake()
	fake.Files["/base.toml"] = []byte(`
[[seats]]
name = "seat0"
sessions_dir = "/a"
session_command = "/b"
`)
	fake.Files["/override.toml"] = []byte(`
[[seats]]
name = "seat0"
sessions_dir = "/overridden"
`)

	cfg, prov, err := LoadWithOverrides(fake, "/base.toml", "/override.toml")
	if err != nil {
		t.Fatalf("LoadWithOverrides() = %v", err)
	}
	if cfg.Seats[0].SessionsDir != "/overridden" {
		t.Errorf("SessionsDir = %q, want /overridden", cfg.Seats[0].SessionsDir)
	}
	if len(prov.Warnings) == 0 {
		t.Error("Warnings = empty, want a collision warning for sessions_dir")
	}
}

func TestLoadWithOverridesRejectsInvalidComposedConfig(t *testing.T) {
	fake := fsys.NewFake()
	fake.Files["/base.toml"] = []byte(`
[[seats]]
name = "seat0"
sessions_dir = "/a"
session_command = "/b"

[[seats]]
name = "seat1"
sessions_dir = "/c"
session_command = "/d"
`)
	fake.Files["/override.toml"] = []byte(`
[[seats]]
name = "seat2"
sessions_dir = "/e"
`)

	if _, _, err := LoadWithOverrides(fake, "/base.toml", "/override.toml"); err == nil {
		t.Error("LoadWithOverrides() with seat2 missing session_command = nil error, want error")
	}
}
