package config

import (
	"context"
	"errors"
	"testing"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	customSchema := `
#Mirror: {
	url:      =~"^https://"
	priority: int & >=0
}
`

	if err := sr.RegisterSchema("mirror", customSchema, "#Mirror"); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("mirror")
	if !ok {
		t.Fatal("expected to find mirror schema")
	}
	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}

	ctx := context.Background()
	if err := sr.ValidateAgainstSchema(ctx, "mirror", map[string]interface{}{
		"url":      "https://mirror.example.org",
		"priority": 1,
	}); err != nil {
		t.Errorf("expected valid mirror, got %v", err)
	}
	if err := sr.ValidateAgainstSchema(ctx, "mirror", map[string]interface{}{
		"url":      "http://mirror.example.org",
		"priority": 1,
	}); err == nil {
		t.Error("expected plain http mirror to be rejected")
	}
}

func TestSchemaRegistry_ListSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	got := sr.ListSchemas()
	want := []string{SchemaConfig, SchemaFile, SchemaRecipe}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("schema %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestSchemaRegistry_InvalidSchema(t *testing.T) {
	sr := NewSchemaRegistry()

	if err := sr.RegisterSchema("invalid", "this is not valid CUE syntax", "#X"); err == nil {
		t.Error("expected error when registering invalid schema")
	}
	if err := sr.RegisterSchema("nodef", "#Y: {a: int}", "#X"); err == nil {
		t.Error("expected error when the definition is missing")
	}
	if err := sr.ValidateAgainstSchema(context.Background(), "unknown", map[string]interface{}{}); err == nil {
		t.Error("expected error for unknown schema")
	}
}

func TestSchemaRegistry_ValidateConfig(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	valid := func() *Config {
		cfg := Default()
		cfg.OutDir = "/tmp/fftw"
		return cfg
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		wantPath string
	}{
		{name: "defaults with out dir"},
		{
			name:     "empty out dir",
			mutate:   func(c *Config) { c.OutDir = "" },
			wantPath: "out_dir",
		},
		{
			name:     "unknown platform",
			mutate:   func(c *Config) { c.Platform = "darwin" },
			wantPath: "platform",
		},
		{
			name:     "negative jobs",
			mutate:   func(c *Config) { c.Jobs = -2 },
			wantPath: "jobs",
		},
		{
			name:     "malformed checksum",
			mutate:   func(c *Config) { c.Unix.Checksum = "md5:not-hex" },
			wantPath: "unix.checksum",
		},
		{
			name:     "url without scheme",
			mutate:   func(c *Config) { c.Windows.URL = "ftp.fftw.org/pub/fftw.zip" },
			wantPath: "windows.url",
		},
		{
			name:     "archive name with directory",
			mutate:   func(c *Config) { c.Windows.ArchiveName = "cache/fftw.zip" },
			wantPath: "windows.archive_name",
		},
		{
			name:     "recipe without star extension",
			mutate:   func(c *Config) { c.Recipe = "recipe.py" },
			wantPath: "recipe",
		},
		{
			name:     "otlp without endpoint",
			mutate:   func(c *Config) { c.Tracing.Exporter = "otlp" },
			wantPath: "tracing.endpoint",
		},
		{
			name:     "unknown log format",
			mutate:   func(c *Config) { c.Log.Format = "xml" },
			wantPath: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			err := sr.ValidateAgainstSchema(ctx, SchemaConfig, cfg)
			if tt.wantPath == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			if !hasPath(verrs, tt.wantPath) {
				t.Errorf("expected an error at %s, got %v", tt.wantPath, verrs)
			}
		})
	}
}

func TestSchemaRegistry_ValidateRecipe(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		data    map[string]interface{}
		wantErr bool
	}{
		{name: "empty", data: map[string]interface{}{}},
		{
			name: "args and env",
			data: map[string]interface{}{
				"configure_args": []interface{}{"--enable-sse2"},
				"env":            map[string]interface{}{"CFLAGS": "-O3"},
			},
		},
		{
			name:    "non-string arg",
			data:    map[string]interface{}{"configure_args": []interface{}{int64(1)}},
			wantErr: true,
		},
		{
			name:    "invalid env name",
			data:    map[string]interface{}{"env": map[string]interface{}{"BAD-NAME": "x"}},
			wantErr: true,
		},
		{
			name:    "unknown export",
			data:    map[string]interface{}{"jobs": int64(4)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateAgainstSchema(ctx, SchemaRecipe, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAgainstSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func hasPath(errs ValidationErrors, path string) bool {
	for _, e := range errs {
		if e.Path == path {
			return true
		}
	}
	return false
}
