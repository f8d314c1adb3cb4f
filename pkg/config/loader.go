package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/openfroyo/fftwprov/pkg/provision"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load. OUT_DIR, TARGET and NUM_JOBS are the names the
// build system sets.
const (
	EnvOutDir          = "OUT_DIR"
	EnvTarget          = "TARGET"
	EnvNumJobs         = "NUM_JOBS"
	EnvConfig          = "FFTWPROV_CONFIG"
	EnvVersion         = "FFTWPROV_VERSION"
	EnvUnixURL         = "FFTWPROV_UNIX_URL"
	EnvUnixChecksum    = "FFTWPROV_UNIX_CHECKSUM"
	EnvWindowsURL      = "FFTWPROV_WINDOWS_URL"
	EnvWindowsChecksum = "FFTWPROV_WINDOWS_CHECKSUM"
	EnvLibrarian       = "FFTWPROV_LIBRARIAN"
	EnvLogLevel        = "LOG_LEVEL"
)

// Loader layers defaults, a config file and the environment into a Config.
type Loader struct {
	registry  *SchemaRegistry
	parser    *CUEParser
	validate  *validator.Validate
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader reading the process environment.
func NewLoader() *Loader {
	registry := NewSchemaRegistry()
	return &Loader{
		registry:  registry,
		parser:    NewCUEParser(registry),
		validate:  newValidator(),
		lookupEnv: os.LookupEnv,
	}
}

// WithEnv replaces the environment lookup.
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// SchemaRegistry returns the registry shared by the loader's parser and recipes.
func (l *Loader) SchemaRegistry() *SchemaRegistry {
	return l.registry
}

// ConfigPath returns path, or FFTWPROV_CONFIG when path is empty.
func (l *Loader) ConfigPath(path string) string {
	if path != "" {
		return path
	}
	v, _ := l.lookupEnv(EnvConfig)
	return v
}

// Load returns the defaults overlaid with the config file at path (if any) and then
// the environment. The result is not validated; apply flag overrides first and call
// Validate.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := Default()

	if path = l.ConfigPath(path); path != "" {
		if err := l.LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile overlays the config file at path onto cfg. The format follows the
// extension: .yaml, .yml or .cue.
func (l *Loader) LoadFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return decodeYAML(path, content, cfg)
	case ".cue":
		if err := l.parser.ParseFile(path, cfg); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported config file type: %s", path)
	}
}

func decodeYAML(path string, content []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	strs := []struct {
		name  string
		field *string
	}{
		{EnvOutDir, &cfg.OutDir},
		{EnvTarget, &cfg.Target},
		{EnvVersion, &cfg.Version},
		{EnvUnixURL, &cfg.Unix.URL},
		{EnvUnixChecksum, &cfg.Unix.Checksum},
		{EnvWindowsURL, &cfg.Windows.URL},
		{EnvWindowsChecksum, &cfg.Windows.Checksum},
		{EnvLibrarian, &cfg.Windows.Librarian},
		{EnvLogLevel, &cfg.Log.Level},
	}
	for _, s := range strs {
		if v, ok := l.lookupEnv(s.name); ok && v != "" {
			*s.field = v
		}
	}

	if v, ok := l.lookupEnv(EnvNumJobs); ok && v != "" {
		jobs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvNumJobs, v, err)
		}
		cfg.Jobs = jobs
	}

	return nil
}

// Validate checks cfg with the struct rules, the checksum and URL parsers and the CUE
// config schema. Every problem found is returned in one ValidationErrors.
func (l *Loader) Validate(ctx context.Context, cfg *Config) error {
	var errs ValidationErrors

	if err := l.validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate config: %w", err)
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Path:    fieldPath(fe.Namespace()),
				Message: describeFieldError(fe),
			})
		}
	}

	if _, err := provision.ParseChecksum(cfg.Unix.Checksum); err != nil {
		errs = append(errs, ValidationError{Path: "unix.checksum", Message: err.Error()})
	}
	if _, err := provision.ParseChecksum(cfg.Windows.Checksum); err != nil {
		errs = append(errs, ValidationError{Path: "windows.checksum", Message: err.Error()})
	}
	if u, err := url.Parse(cfg.UnixURL()); err != nil || u.Scheme == "" {
		errs = append(errs, ValidationError{Path: "unix.url", Message: fmt.Sprintf("not an absolute URL: %s", cfg.UnixURL())})
	}

	if err := l.registry.ValidateAgainstSchema(ctx, SchemaConfig, cfg); err != nil {
		var schemaErrs ValidationErrors
		if !errors.As(err, &schemaErrs) {
			return err
		}
		errs = append(errs, schemaErrs...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("abspath", func(fl validator.FieldLevel) bool {
		return filepath.IsAbs(fl.Field().String())
	})

	return v
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", fe.Param())
	case "abspath":
		return fmt.Sprintf("must be an absolute path, got %q", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("must be a URL, got %q", fe.Value())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}
