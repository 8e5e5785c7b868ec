// Package config handles loading and parsing the broker's TOML
// configuration, and generating its JSON Schema equivalent.
package config

import (
	"bytes"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/gascity-labs/authbroker/internal/fsys"
)

// Config is the top-level configuration for an authbroker instance.
type Config struct {
	Seats  []Seat       `toml:"seats"`
	Paths  PathsConfig  `toml:"paths,omitempty"`
	Audit  AuditConfig  `toml:"audit,omitempty"`
	Daemon DaemonConfig `toml:"daemon,omitempty"`
}

// Seat configures one seat this broker instance manages. A single-seat
// deployment has exactly one entry.
type Seat struct {
	Name           string `toml:"name"`
	SessionsDir    string `toml:"sessions_dir"`
	SessionCommand string `toml:"session_command"`
	DefaultPath    string `toml:"default_path,omitempty"`
	TestingMode    bool   `toml:"testing_mode,omitempty"`
	PAMService     string `toml:"pam_service,omitempty"`
	ShadowFallback bool   `toml:"shadow_fallback,omitempty"`
	HelperPath     string `toml:"helper_path,omitempty"`
}

// PathsConfig holds filesystem defaults shared across seats.
type PathsConfig struct {
	PasswdFile string `toml:"passwd_file,omitempty"`
	ShadowFile string `toml:"shadow_file,omitempty"`
	ShellsFile string `toml:"shells_file,omitempty"`
}

// AuditConfig configures the optional MySQL-backed session audit trail.
// When DSN is empty, audit logging is disabled.
type AuditConfig struct {
	DSN string `toml:"dsn,omitempty"`
}

// DaemonConfig holds broker process-management settings.
type DaemonConfig struct {
	PIDFile        string `toml:"pid_file,omitempty"`
	LogFile        string `toml:"log_file,omitempty"`
	ReloadInterval string `toml:"reload_interval,omitempty"`
}

// ReloadIntervalDuration returns reload_interval as a time.Duration,
// defaulting to 5s if empty or unparseable. The daemon does not use it:
// config reload is driven only by fsnotify events on the config file's
// directory, with no periodic re-stat.
func (d *DaemonConfig) ReloadIntervalDuration() time.Duration {
	if d.ReloadInterval == "" {
		return 5 * time.Second
	}
	dur, err := time.ParseDuration(d.ReloadInterval)
	if err != nil {
		return 5 * time.Second
	}
	return dur
}

// DefaultPathsConfig returns the conventional system file locations.
func DefaultPathsConfig() PathsConfig {
	return PathsConfig{
		PasswdFile: "/etc/passwd",
		ShadowFile: "/etc/shadow",
		ShellsFile: "/etc/shells",
	}
}

// EffectivePaths returns p with empty fields replaced by their defaults.
func (p PathsConfig) EffectivePaths() PathsConfig {
	d := DefaultPathsConfig()
	if p.PasswdFile == "" {
		p.PasswdFile = d.PasswdFile
	}
	if p.ShadowFile == "" {
		p.ShadowFile = d.ShadowFile
	}
	if p.ShellsFile == "" {
		p.ShellsFile = d.ShellsFile
	}
	return p
}

// SeatByName returns the named seat and true, or the zero Seat and false.
func (c *Config) SeatByName(name string) (Seat, bool) {
	for _, s := range c.Seats {
		if s.Name == name {
			return s, true
		}
	}
	return Seat{}, false
}

// Validate checks the config for the errors ValidateAgents/ValidateRigs
// once caught in the teacher's domain: missing required fields and
// duplicate identities.
func Validate(c *Config) error {
	seen := make(map[string]bool, len(c.Seats))
	for i, s := range c.Seats {
		if s.Name == "" {
			return fmt.Errorf("seat[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("seat %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
		if s.SessionsDir == "" {
			return fmt.Errorf("seat %q: sessions_dir is required", s.Name)
		}
		if s.SessionCommand == "" {
			return fmt.Errorf("seat %q: session_command is required", s.Name)
		}
	}
	return nil
}

// DefaultConfig returns a Config with one seat named "seat0".
func DefaultConfig() Config {
	return Config{
		Seats: []Seat{{
			Name:           "seat0",
			SessionsDir:    "/usr/share/xsessions",
			SessionCommand: "/usr/bin/authbroker-session",
			DefaultPath:    "/usr/local/bin:/usr/bin:/bin",
		}},
	}
}

// Marshal encodes a Config to TOML bytes.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads and parses a config file at path using the provided
// filesystem. All file I/O goes through fs for testability.
func Load(fs fsys.FS, path string) (*Config, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes TOML data into a Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
