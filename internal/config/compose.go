package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/gascity-labs/authbroker/internal/fsys"
)

// Provenance tracks which file last set each seat field during
// composition, so a caller can tell which file gave seat0 its
// session_command. Built into the merge API
// from the start, the way the teacher's fragment merge does.
type Provenance struct {
	Root     string
	Sources  []string
	Seats    map[string]string // seat field key ("seat0.session_command") → source file
	Warnings []string
}

func newProvenance(rootPath string) *Provenance {
	return &Provenance{Root: rootPath, Sources: []string{rootPath}, Seats: make(map[string]string)}
}

// LoadWithOverrides loads a base config and merges per-seat override
// fragments over it in order. A fragment may only touch seats: scalar
// fields explicitly set in the fragment replace the base field; a
// fragment redefining a field the base (or an earlier fragment) already
// set produces a provenance warning rather than an error, so multi-seat
// deployments can be debugged without the broker refusing to start.
func LoadWithOverrides(fs fsys.FS, path string, overridePaths ...string) (*Config, *Provenance, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %q: %w", path, err)
	}
	base, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %q: %w", path, err)
	}

	prov := newProvenance(path)
	trackSeats(prov, base.Seats, path)

	for _, p := range overridePaths {
		fragData, err := fs.ReadFile(p)
		if err != nil {
			return nil, nil, fmt.Errorf("loading override %q: %w", p, err)
		}
		var frag Config
		meta, err := toml.Decode(string(fragData), &frag)
		if err != nil {
			return nil, nil, fmt.Errorf("override %q: %w", p, err)
		}
		mergeSeats(base, &frag, meta, p, prov)
		prov.Sources = append(prov.Sources, p)
	}

	if err := Validate(base); err != nil {
		return nil, nil, fmt.Errorf("composed config: %w", err)
	}
	return base, prov, nil
}

// mergeSeats merges fragment seats into base by name. A seat name not
// already present in base is appended; an existing seat is merged field
// by field, using toml.MetaData.IsDefined so zero-value fields in the
// fragment never clobber a base value.
func mergeSeats(base, fragment *Config, meta toml.MetaData, fragPath string, prov *Provenance) {
	byName := make(map[string]int, len(base.Seats))
	for i, s := range base.Seats {
		byName[s.Name] = i
	}

	for fi, frag := range fragment.Seats {
		idx, exists := byName[frag.Name]
		if !exists {
			base.Seats = append(base.Seats, frag)
			trackSeats(prov, []Seat{frag}, fragPath)
			continue
		}
		mergeSeatFields(&base.Seats[idx], frag, fi, meta, fragPath, prov)
	}
}

func mergeSeatFields(base *Seat, frag Seat, fragIndex int, meta toml.MetaData, fragPath string, prov *Provenance) {
	type field struct {
		key     string
		defined bool
		base    string
		apply   func()
	}
	fields := []field{
		{"sessions_dir", meta.IsDefined("seats", fragIndex, "sessions_dir"), base.SessionsDir, func() { base.SessionsDir = frag.SessionsDir }},
		{"session_command", meta.IsDefined("seats", fragIndex, "session_command"), base.SessionCommand, func() { base.SessionCommand = frag.SessionCommand }},
		{"default_path", meta.IsDefined("seats", fragIndex, "default_path"), base.DefaultPath, func() { base.DefaultPath = frag.DefaultPath }},
		{"pam_service", meta.IsDefined("seats", fragIndex, "pam_service"), base.PAMService, func() { base.PAMService = frag.PAMService }},
		{"helper_path", meta.IsDefined("seats", fragIndex, "helper_path"), base.HelperPath, func() { base.HelperPath = frag.HelperPath }},
	}
	for _, f := range fields {
		if !f.defined {
			continue
		}
		if f.base != "" {
			prov.Warnings = append(prov.Warnings,
				fmt.Sprintf("seat %q.%s redefined by %q", base.Name, f.key, fragPath))
		}
		f.apply()
		prov.Seats[base.Name+"."+f.key] = fragPath
	}
	if meta.IsDefined("seats", fragIndex, "testing_mode") {
		base.TestingMode = frag.TestingMode
		prov.Seats[base.Name+".testing_mode"] = fragPath
	}
	if meta.IsDefined("seats", fragIndex, "shadow_fallback") {
		base.ShadowFallback = frag.ShadowFallback
		prov.Seats[base.Name+".shadow_fallback"] = fragPath
	}
}

func trackSeats(prov *Provenance, seats []Seat, source string) {
	for _, s := range seats {
		prov.Seats[s.Name+".*"] = source
	}
}
