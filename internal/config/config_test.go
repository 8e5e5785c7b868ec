package config

import (
	"testing"

	"github.com/gascity-labs/authbroker/internal/fsys"
)

func TestParseSingleSeat(t *testing.T) {
	data := []byte(`
[[seats]]
name = "seat0"
sessions_dir = "/usr/share/xsessions"
session_command = "/usr/bin/authbroker-session"
default_path = "/usr/bin:/bin"
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if len(cfg.Seats) != 1 {
		t.Fatalf("len(Seats) = %d, want 1", len(cfg.Seats))
	}
	seat := cfg.Seats[0]
	if seat.Name != "seat0" || seat.SessionsDir != "/usr/share/xsessions" {
		t.Errorf("Seats[0] = %+v, unexpected", seat)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cfg := &Config{Seats: []Seat{{Name: "seat0"}}}
	if err := Validate(cfg); err == nil {
		t.Error("Validate() with missing sessions_dir = nil, want error")
	}
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	cfg := &Config{Seats: []Seat{
		{Name: "seat0", SessionsDir: "/a", SessionCommand: "/b"},
		{Name: "seat0", SessionsDir: "/a", SessionCommand: "/b"},
	}}
	if err := Validate(cfg); err == nil {
		t.Error("Validate() with duplicate seat names = nil, want error")
	}
}

func TestSeatByName(t *testing.T) {
	cfg := &Config{Seats: []Seat{{Name: "seat0"}, {Name: "seat1"}}}
	if _, ok := cfg.SeatByName("seat1"); !ok {
		t.Error("SeatByName(seat1) = not found, want found")
	}
	if _, ok := cfg.SeatByName("ghost"); ok {
		t.Error("SeatByName(ghost) = found, want not found")
	}
}

func TestEffectivePathsDefaults(t *testing.T) {
	got := PathsConfig{}.EffectivePaths()
	want := DefaultPathsConfig()
	if got != want {
		t.Errorf("EffectivePaths() = %+v, want %+v", got, want)
	}
}

func TestLoadUsesFS(t *testing.T) {
	fake := fsys.NewFake()
	fake.Files["/etc/authbroker/config.toml"] = []byte(`
[[seats]]
name = "seat0"
sessions_dir = "/a"
session_command = "/b"
`)
	cfg, err := Load(fake, "/etc/authbroker/config.toml")
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if len(cfg.Seats) != 1 || cfg.Seats[0].Name != "seat0" {
		t.Errorf("Load() = %+v, unexpected", cfg)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("Marshal() = %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse(Marshal()) = %v", err)
	}
	if len(got.Seats) != len(cfg.Seats) || got.Seats[0].Name != cfg.Seats[0].Name {
		t.Errorf("round trip = %+v, want %+v", got.Seats, cfg.Seats)
	}
}
