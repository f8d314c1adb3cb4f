package config

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// Names of the built-in schemas.
const (
	SchemaConfig = "config"
	SchemaFile   = "file"
	SchemaRecipe = "recipe"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas. They are compile-time
// constants, so a failure here is a programming error.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	for name, def := range map[string]string{
		SchemaConfig: "#Config",
		SchemaFile:   "#File",
		SchemaRecipe: "#Recipe",
	} {
		if err := sr.RegisterSchema(name, builtinSchemas, def); err != nil {
			panic(err)
		}
	}
}

// RegisterSchema compiles source and registers its definition (e.g. "#Config")
// under name.
func (sr *SchemaRegistry) RegisterSchema(name, source, definition string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	def := val.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, definition)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates Go data against a named schema. Violations are
// returned as ValidationErrors.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}

	return nil
}

// ListSchemas returns all registered schema names in sorted order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// convertCUEErrors converts a CUE error list to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var validationErrors ValidationErrors

	for _, e := range errors.Errors(err) {
		path := e.Path()
		for len(path) > 0 && strings.HasPrefix(path[0], "#") {
			path = path[1:]
		}
		ve := ValidationError{
			Path:    strings.Join(path, "."),
			Message: strings.TrimSpace(errors.Details(e, nil)),
		}
		if pos := errors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		validationErrors = append(validationErrors, ve)
	}

	if len(validationErrors) == 0 {
		validationErrors = append(validationErrors, ValidationError{Message: err.Error()})
	}

	return validationErrors
}

const builtinSchemas = `
#Checksum: =~"^((md5|sha256|sha512):)?[0-9a-fA-F]+$"

#URL: =~"^[A-Za-z][A-Za-z0-9+.-]*://"

#Config: {
	out_dir:  string & !=""
	target:   string
	platform: "" | "unix" | "windows"
	version:  =~"^[A-Za-z0-9][A-Za-z0-9._+-]*$"
	jobs:     int & >=0
	strict:   bool

	unix: {
		url:      #URL
		checksum: #Checksum
	}

	windows: {
		url:          #URL
		checksum:     "" | #Checksum
		archive_name: =~"^[^/\\\\]+\\.zip$"
		librarian:    string
	}

	ftp: {
		user:            string
		password:        string
		timeout_seconds: int & >0
	}

	sftp: {
		user:                     string
		password:                 string
		private_key_path:         string
		known_hosts_path:         string
		strict_host_key_checking: bool
	}

	recipe:             "" | =~"\\.star$"
	policies?:          [...string & !=""]
	enabled_policies?:  [...string & !=""]
	disabled_policies?: [...string & !=""]

	ledger: {
		enabled: bool
		path:    string
	}

	log: {
		level:  "trace" | "debug" | "info" | "warn" | "error"
		format: "console" | "json"
	}

	metrics: {
		textfile:       string
		listen_address: string
	}

	tracing: {
		exporter: "none" | "stdout" | "otlp"
		endpoint: string
		if exporter == "otlp" {
			endpoint: !=""
		}
	}
}

// #File is a config file overlay: every field is optional.
#File: {
	out_dir?:  string & !=""
	target?:   string
	platform?: "" | "unix" | "windows"
	version?:  =~"^[A-Za-z0-9][A-Za-z0-9._+-]*$"
	jobs?:     int & >=0
	strict?:   bool

	unix?: {
		url?:      #URL
		checksum?: #Checksum
	}

	windows?: {
		url?:          #URL
		checksum?:     "" | #Checksum
		archive_name?: =~"^[^/\\\\]+\\.zip$"
		librarian?:    string
	}

	ftp?: {
		user?:            string
		password?:        string
		timeout_seconds?: int & >0
	}

	sftp?: {
		user?:                     string
		password?:                 string
		private_key_path?:         string
		known_hosts_path?:         string
		strict_host_key_checking?: bool
	}

	recipe?:            "" | =~"\\.star$"
	policies?:          [...string & !=""]
	enabled_policies?:  [...string & !=""]
	disabled_policies?: [...string & !=""]

	ledger?: {
		enabled?: bool
		path?:    string
	}

	log?: {
		level?:  "trace" | "debug" | "info" | "warn" | "error"
		format?: "console" | "json"
	}

	metrics?: {
		textfile?:       string
		listen_address?: string
	}

	tracing?: {
		exporter?: "none" | "stdout" | "otlp"
		endpoint?: string
	}
}

// #Recipe is what a configure recipe may export.
#Recipe: {
	configure_args?: [...string & !=""]
	env?: {[=~"^[A-Za-z_][A-Za-z0-9_]*$"]: string}
}
`
