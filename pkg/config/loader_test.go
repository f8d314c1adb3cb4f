package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().WithEnv(envMap(nil)).Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Version != "fftw-3.3.6-pl1" {
		t.Errorf("unexpected version %s", cfg.Version)
	}
	if got := cfg.UnixURL(); got != "http://www.fftw.org/fftw-3.3.6-pl1.tar.gz" {
		t.Errorf("unexpected unix url %s", got)
	}
	if cfg.Unix.Checksum != "md5:682a0e78d6966ca37c7446d4ab4cc2a1" {
		t.Errorf("unexpected unix checksum %s", cfg.Unix.Checksum)
	}
	if cfg.Windows.URL != "ftp://ftp.fftw.org/pub/fftw/fftw-3.3.5-dll64.zip" {
		t.Errorf("unexpected windows url %s", cfg.Windows.URL)
	}
	if cfg.Windows.ArchiveName != "fftw_windows.zip" {
		t.Errorf("unexpected archive name %s", cfg.Windows.ArchiveName)
	}
	if cfg.Windows.Checksum != "" {
		t.Errorf("expected no windows checksum by default, got %s", cfg.Windows.Checksum)
	}
	if cfg.OutDir != "" {
		t.Errorf("expected empty out dir, got %s", cfg.OutDir)
	}
}

func TestLoader_YAMLFile(t *testing.T) {
	path := writeConfig(t, "fftwprov.yaml", `
out_dir: /tmp/fftw
jobs: 4
strict: true
windows:
  librarian: llvm-lib
log:
  format: json
`)

	cfg, err := NewLoader().WithEnv(envMap(nil)).Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.OutDir != "/tmp/fftw" || cfg.Jobs != 4 || !cfg.Strict {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Windows.Librarian != "llvm-lib" {
		t.Errorf("expected librarian llvm-lib, got %s", cfg.Windows.Librarian)
	}
	if cfg.Windows.URL != DefaultWindowsURL {
		t.Errorf("expected default windows url to survive, got %s", cfg.Windows.URL)
	}
	if cfg.Log.Format != "json" || cfg.Log.Level != "info" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
}

func TestLoader_PolicyToggles(t *testing.T) {
	path := writeConfig(t, "fftwprov.yaml", `
out_dir: /tmp/fftw
enabled_policies: [mirror-allowlist]
disabled_policies:
  - source-transport
  - source-integrity
`)

	cfg, err := NewLoader().WithEnv(envMap(nil)).Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.EnabledPolicies) != 1 || cfg.EnabledPolicies[0] != "mirror-allowlist" {
		t.Errorf("unexpected enabled policies %v", cfg.EnabledPolicies)
	}
	if strings.Join(cfg.DisabledPolicies, ",") != "source-transport,source-integrity" {
		t.Errorf("unexpected disabled policies %v", cfg.DisabledPolicies)
	}
	if err := NewLoader().Validate(context.Background(), cfg); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoader_FileErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "unknown yaml field", file: "c.yaml", content: "outdir: /tmp\n"},
		{name: "malformed yaml", file: "c.yml", content: "jobs: [\n"},
		{name: "invalid cue value", file: "c.cue", content: "jobs: -3\n"},
		{name: "unsupported extension", file: "c.toml", content: "jobs = 3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			if _, err := NewLoader().WithEnv(envMap(nil)).Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := NewLoader().WithEnv(envMap(nil)).Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoader_EmptyYAML(t *testing.T) {
	path := writeConfig(t, "empty.yaml", "")

	cfg, err := NewLoader().WithEnv(envMap(nil)).Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Version != DefaultVersion {
		t.Errorf("expected defaults, got version %s", cfg.Version)
	}
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "fftwprov.cue", `
out_dir: "/from/file"
jobs:    2
version: "fftw-3.3.5"
`)

	env := map[string]string{
		EnvOutDir:          "/from/env",
		EnvTarget:          "x86_64-pc-windows-msvc",
		EnvNumJobs:         "16",
		EnvVersion:         "fftw-3.3.10",
		EnvWindowsChecksum: "sha256:" + sha256Zeros,
		EnvLibrarian:       `C:\LLVM\bin\llvm-lib.exe`,
		EnvLogLevel:        "debug",
		EnvUnixURL:         "",
	}

	cfg, err := NewLoader().WithEnv(envMap(env)).Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.OutDir != "/from/env" {
		t.Errorf("expected env out dir, got %s", cfg.OutDir)
	}
	if cfg.Target != "x86_64-pc-windows-msvc" {
		t.Errorf("expected env target, got %s", cfg.Target)
	}
	if cfg.Jobs != 16 {
		t.Errorf("expected 16 jobs, got %d", cfg.Jobs)
	}
	if cfg.Version != "fftw-3.3.10" {
		t.Errorf("expected env version, got %s", cfg.Version)
	}
	if cfg.UnixURL() != "http://www.fftw.org/fftw-3.3.10.tar.gz" {
		t.Errorf("expected version substituted into url, got %s", cfg.UnixURL())
	}
	if cfg.Windows.Checksum != "sha256:"+sha256Zeros {
		t.Errorf("unexpected windows checksum %s", cfg.Windows.Checksum)
	}
	if cfg.Windows.Librarian != `C:\LLVM\bin\llvm-lib.exe` {
		t.Errorf("unexpected librarian %s", cfg.Windows.Librarian)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.Log.Level)
	}
	if cfg.Unix.URL != DefaultUnixURL {
		t.Errorf("empty env value must not override, got %s", cfg.Unix.URL)
	}
}

func TestLoader_ConfigFromEnv(t *testing.T) {
	path := writeConfig(t, "fftwprov.yml", "jobs: 3\n")

	loader := NewLoader().WithEnv(envMap(map[string]string{EnvConfig: path}))
	if got := loader.ConfigPath(""); got != path {
		t.Errorf("expected config path from env, got %q", got)
	}
	if got := loader.ConfigPath("explicit.yaml"); got != "explicit.yaml" {
		t.Errorf("explicit path must win, got %q", got)
	}

	cfg, err := loader.Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Jobs != 3 {
		t.Errorf("expected jobs from env-named file, got %d", cfg.Jobs)
	}
}

func TestLoader_InvalidNumJobs(t *testing.T) {
	_, err := NewLoader().WithEnv(envMap(map[string]string{EnvNumJobs: "many"})).Load("")
	if err == nil || !strings.Contains(err.Error(), EnvNumJobs) {
		t.Errorf("expected NUM_JOBS error, got %v", err)
	}
}

func TestLoader_Validate(t *testing.T) {
	loader := NewLoader()
	ctx := context.Background()

	tests := []struct {
		name     string
		mutate   func(*Config)
		wantPath string
	}{
		{name: "valid"},
		{
			name:   "windows checksum set",
			mutate: func(c *Config) { c.Windows.Checksum = "sha256:" + sha256Zeros },
		},
		{
			name:     "missing out dir",
			mutate:   func(c *Config) { c.OutDir = "" },
			wantPath: "out_dir",
		},
		{
			name:     "relative out dir",
			mutate:   func(c *Config) { c.OutDir = "target/fftw" },
			wantPath: "out_dir",
		},
		{
			name:     "unknown platform",
			mutate:   func(c *Config) { c.Platform = "mac" },
			wantPath: "platform",
		},
		{
			name:     "negative jobs",
			mutate:   func(c *Config) { c.Jobs = -1 },
			wantPath: "jobs",
		},
		{
			name:     "short md5",
			mutate:   func(c *Config) { c.Unix.Checksum = "md5:abcd" },
			wantPath: "unix.checksum",
		},
		{
			name:     "missing unix checksum",
			mutate:   func(c *Config) { c.Unix.Checksum = "" },
			wantPath: "unix.checksum",
		},
		{
			name:     "bad windows checksum",
			mutate:   func(c *Config) { c.Windows.Checksum = "sha512:00" },
			wantPath: "windows.checksum",
		},
		{
			name:     "relative unix url",
			mutate:   func(c *Config) { c.Unix.URL = "www.fftw.org/{version}.tar.gz" },
			wantPath: "unix.url",
		},
		{
			name:     "missing windows url",
			mutate:   func(c *Config) { c.Windows.URL = "" },
			wantPath: "windows.url",
		},
		{
			name:     "zero ftp timeout",
			mutate:   func(c *Config) { c.FTP.TimeoutSeconds = 0 },
			wantPath: "ftp.timeout_seconds",
		},
		{
			name:     "unknown log level",
			mutate:   func(c *Config) { c.Log.Level = "loud" },
			wantPath: "log.level",
		},
		{
			name:     "otlp without endpoint",
			mutate:   func(c *Config) { c.Tracing.Exporter = "otlp" },
			wantPath: "tracing.endpoint",
		},
		{
			name:     "bad metrics address",
			mutate:   func(c *Config) { c.Metrics.ListenAddress = "not an address" },
			wantPath: "metrics.listen_address",
		},
		{
			name:     "empty policy path",
			mutate:   func(c *Config) { c.Policies = []string{""} },
			wantPath: "policies[0]",
		},
		{
			name: "policy toggles",
			mutate: func(c *Config) {
				c.EnabledPolicies = []string{"mirror-allowlist"}
				c.DisabledPolicies = []string{"source-transport"}
			},
		},
		{
			name:     "empty disabled policy",
			mutate:   func(c *Config) { c.DisabledPolicies = []string{"source-transport", ""} },
			wantPath: "disabled_policies[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.OutDir = "/tmp/fftw"
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			err := loader.Validate(ctx, cfg)
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

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{File: "fftwprov.cue", Line: 3, Column: 7, Path: "jobs", Message: "invalid value -1"},
		{Path: "out_dir", Message: "is required"},
	}

	want := "invalid configuration: fftwprov.cue:3:7: jobs: invalid value -1; out_dir: is required"
	if got := errs.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
