package config

import "github.com/invopop/jsonschema"

// GenerateSchema produces a JSON Schema for the TOML config format,
// reflecting Config with its "toml" field names so a generated schema
// document matches the file the BurntSushi/toml decoder actually reads.
func GenerateSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{FieldNameTag: "toml", ExpandedStruct: true}
	s := r.Reflect(&Config{})
	s.Title = "authbroker configuration"
	s.Description = "Schema for authbroker.toml, the top-level configuration file for an authbroker instance."
	return s
}
