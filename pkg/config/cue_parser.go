package config

import (
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
)

// CUEParser reads .cue configuration files.
type CUEParser struct {
	schemaRegistry *SchemaRegistry
}

// NewCUEParser creates a parser that checks files against the registry's file schema.
func NewCUEParser(registry *SchemaRegistry) *CUEParser {
	return &CUEParser{schemaRegistry: registry}
}

// ParseFile evaluates a CUE file, unifies it with the file schema and overlays the
// fields it sets onto cfg.
func (cp *CUEParser) ParseFile(path string, cfg *Config) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return cp.Parse(path, content, cfg)
}

// Parse is ParseFile for in-memory content; filename only labels error positions.
func (cp *CUEParser) Parse(filename string, content []byte, cfg *Config) error {
	// Values must come from the registry's runtime to unify with its schemas.
	val := cp.schemaRegistry.ctx.CompileBytes(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return convertCUEErrors(err)
	}

	schema, ok := cp.schemaRegistry.GetSchema(SchemaFile)
	if !ok {
		return fmt.Errorf("schema %s not found", SchemaFile)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}

	data, err := cp.ExportJSON(unified)
	if err != nil {
		return err
	}

	// Fields absent from the file keep their current values.
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filename, err)
	}

	return nil
}

// ExportJSON exports a CUE value as JSON.
func (cp *CUEParser) ExportJSON(val cue.Value) ([]byte, error) {
	data, err := val.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export JSON: %w", err)
	}
	return data, nil
}
