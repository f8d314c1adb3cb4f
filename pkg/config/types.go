package config

import (
	"fmt"
	"strings"
)

// Default values reproduce the constants the provisioner has always shipped with.
const (
	DefaultVersion      = "fftw-3.3.6-pl1"
	DefaultUnixURL      = "http://www.fftw.org/{version}.tar.gz"
	DefaultUnixChecksum = "md5:682a0e78d6966ca37c7446d4ab4cc2a1"
	DefaultWindowsURL   = "ftp://ftp.fftw.org/pub/fftw/fftw-3.3.5-dll64.zip"
	DefaultArchiveName  = "fftw_windows.zip"
	DefaultLedgerFile   = "fftwprov.db"
	DefaultFTPTimeout   = 60

	versionPlaceholder = "{version}"
)

// Config is the full configuration of a provisioning run.
type Config struct {
	// OutDir is the absolute output directory that receives every artifact.
	OutDir string `yaml:"out_dir" json:"out_dir" validate:"required,abspath"`

	// Target is the target triple, e.g. "x86_64-unknown-linux-gnu".
	Target string `yaml:"target" json:"target"`

	// Platform overrides the platform derived from Target.
	Platform string `yaml:"platform" json:"platform" validate:"omitempty,oneof=unix windows"`

	// Version names the source tarball and its extracted directory.
	Version string `yaml:"version" json:"version" validate:"required"`

	// Jobs is the make parallelism. Zero means one job per CPU.
	Jobs int `yaml:"jobs" json:"jobs" validate:"gte=0"`

	// Strict turns a missing Windows checksum into a policy error.
	Strict bool `yaml:"strict" json:"strict"`

	Unix    UnixConfig    `yaml:"unix" json:"unix"`
	Windows WindowsConfig `yaml:"windows" json:"windows"`
	FTP     FTPConfig     `yaml:"ftp" json:"ftp"`
	SFTP    SFTPConfig    `yaml:"sftp" json:"sftp"`

	// Recipe is the path of a Starlark configure recipe.
	Recipe string `yaml:"recipe" json:"recipe"`

	// Policies are extra .rego/.json policy files or directories.
	Policies []string `yaml:"policies" json:"policies,omitempty" validate:"dive,required"`

	// EnabledPolicies switches on policies that were loaded disabled.
	EnabledPolicies []string `yaml:"enabled_policies" json:"enabled_policies,omitempty" validate:"dive,required"`

	// DisabledPolicies switches policies off, built-ins included. It wins over EnabledPolicies.
	DisabledPolicies []string `yaml:"disabled_policies" json:"disabled_policies,omitempty" validate:"dive,required"`

	Ledger  LedgerConfig  `yaml:"ledger" json:"ledger"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// UnixConfig describes the source tarball.
type UnixConfig struct {
	// URL may contain {version}, replaced by Config.Version.
	URL      string `yaml:"url" json:"url" validate:"required"`
	Checksum string `yaml:"checksum" json:"checksum" validate:"required"`
}

// WindowsConfig describes the prebuilt DLL archive.
type WindowsConfig struct {
	URL         string `yaml:"url" json:"url" validate:"required,url"`
	Checksum    string `yaml:"checksum" json:"checksum"`
	ArchiveName string `yaml:"archive_name" json:"archive_name" validate:"required,excludesall=/\\"`
	Librarian   string `yaml:"librarian" json:"librarian"`
}

// FTPConfig holds FTP login settings.
type FTPConfig struct {
	User           string `yaml:"user" json:"user"`
	Password       string `yaml:"password" json:"password"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds" validate:"gt=0"`
}

// SFTPConfig holds SSH settings for sftp:// mirrors. An empty KnownHostsPath means
// ~/.ssh/known_hosts.
type SFTPConfig struct {
	User                  string `yaml:"user" json:"user"`
	Password              string `yaml:"password" json:"password"`
	PrivateKeyPath        string `yaml:"private_key_path" json:"private_key_path"`
	KnownHostsPath        string `yaml:"known_hosts_path" json:"known_hosts_path"`
	StrictHostKeyChecking bool   `yaml:"strict_host_key_checking" json:"strict_host_key_checking"`
}

// LedgerConfig controls the SQLite run ledger.
type LedgerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path defaults to fftwprov.db inside the output directory.
	Path string `yaml:"path" json:"path"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=console json"`
}

// MetricsConfig controls metrics output.
type MetricsConfig struct {
	Textfile      string `yaml:"textfile" json:"textfile"`
	ListenAddress string `yaml:"listen_address" json:"listen_address" validate:"omitempty,hostname_port"`
}

// TracingConfig controls the trace exporter.
type TracingConfig struct {
	Exporter string `yaml:"exporter" json:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint string `yaml:"endpoint" json:"endpoint" validate:"required_if=Exporter otlp"`
}

// Default returns the built-in configuration. OutDir is left empty.
func Default() *Config {
	return &Config{
		Version: DefaultVersion,
		Unix: UnixConfig{
			URL:      DefaultUnixURL,
			Checksum: DefaultUnixChecksum,
		},
		Windows: WindowsConfig{
			URL:         DefaultWindowsURL,
			ArchiveName: DefaultArchiveName,
		},
		FTP: FTPConfig{
			User:           "anonymous",
			Password:       "anonymous",
			TimeoutSeconds: DefaultFTPTimeout,
		},
		SFTP:   SFTPConfig{StrictHostKeyChecking: true},
		Ledger: LedgerConfig{Enabled: true},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Tracing: TracingConfig{Exporter: "none"},
	}
}

// UnixURL returns the tarball URL with the version substituted.
func (c *Config) UnixURL() string {
	return strings.ReplaceAll(c.Unix.URL, versionPlaceholder, c.Version)
}

// ValidationError is one configuration problem with its location when known.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path, e.g. "unix.checksum".
	Path string `json:"path,omitempty"`

	Message string `json:"message"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors collects every problem found in a configuration.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.String()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}
