package config

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/openfroyo/fftwprov/pkg/fetch"
	"github.com/openfroyo/fftwprov/pkg/provision"
	"github.com/openfroyo/fftwprov/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Options converts a validated config to provisioner options. A configured recipe is
// loaded and wired as the configure hook.
func (c *Config) Options(registry *SchemaRegistry, logger zerolog.Logger) (provision.Options, error) {
	unixSum, err := provision.ParseChecksum(c.Unix.Checksum)
	if err != nil {
		return provision.Options{}, provision.NewConfigError("invalid unix checksum", err)
	}
	windowsSum, err := provision.ParseChecksum(c.Windows.Checksum)
	if err != nil {
		return provision.Options{}, provision.NewConfigError("invalid windows checksum", err)
	}

	jobs := c.Jobs
	if jobs == 0 {
		jobs = runtime.NumCPU()
	}

	opts := provision.Options{
		OutDir:   c.OutDir,
		Target:   c.Target,
		Platform: provision.Platform(c.Platform),
		Version:  c.Version,
		Jobs:     jobs,
		Strict:   c.Strict,
		Unix: provision.UnixSource{
			URL:      c.UnixURL(),
			Checksum: unixSum,
		},
		Windows: provision.WindowsSource{
			URL:         c.Windows.URL,
			Checksum:    windowsSum,
			ArchiveName: c.Windows.ArchiveName,
			Librarian:   c.Windows.Librarian,
		},
	}

	if c.Recipe != "" {
		recipe, err := LoadRecipe(c.Recipe, NewStarlarkEvaluator(DefaultRecipeTimeout, logger), registry)
		if err != nil {
			return provision.Options{}, provision.NewConfigError("failed to load recipe", err)
		}
		opts.Configure = recipe.Hook(c.Target, c.Version)
	}

	return opts, nil
}

// FetchOptions returns the fetcher settings.
func (c *Config) FetchOptions() fetch.Options {
	sftp := fetch.DefaultSSHConfig()
	sftp.User = c.SFTP.User
	sftp.Password = c.SFTP.Password
	sftp.StrictHostKeyChecking = c.SFTP.StrictHostKeyChecking
	if c.SFTP.PrivateKeyPath != "" {
		sftp.PrivateKeyPath = c.SFTP.PrivateKeyPath
	} else if c.SFTP.Password != "" {
		sftp.AuthMethod = fetch.AuthMethodPassword
	}
	if c.SFTP.KnownHostsPath != "" {
		sftp.KnownHostsPath = c.SFTP.KnownHostsPath
	}

	return fetch.Options{
		FTP: fetch.FTPConfig{
			User:     c.FTP.User,
			Password: c.FTP.Password,
			Timeout:  time.Duration(c.FTP.TimeoutSeconds) * time.Second,
		},
		SFTP: sftp,
	}
}

// TelemetryConfig returns the telemetry settings for a binary of the given version.
func (c *Config) TelemetryConfig(serviceVersion string) *telemetry.Config {
	tc := telemetry.DefaultConfig()
	if serviceVersion != "" {
		tc.ServiceVersion = serviceVersion
	}
	tc.Logging.Level = c.Log.Level
	tc.Logging.Format = c.Log.Format
	tc.Tracing.Exporter = c.Tracing.Exporter
	tc.Tracing.Endpoint = c.Tracing.Endpoint
	tc.Metrics.Textfile = c.Metrics.Textfile
	tc.Metrics.ListenAddress = c.Metrics.ListenAddress
	return tc
}

// LedgerPath returns the run ledger database path, or "" when the ledger is disabled.
func (c *Config) LedgerPath() string {
	if !c.Ledger.Enabled {
		return ""
	}
	if c.Ledger.Path != "" {
		return c.Ledger.Path
	}
	return filepath.Join(c.OutDir, DefaultLedgerFile)
}

// WatchPaths returns the files whose changes should trigger a new provisioning pass.
func (c *Config) WatchPaths(configPath string) []string {
	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}
	if c.Recipe != "" {
		paths = append(paths, c.Recipe)
	}
	return append(paths, c.Policies...)
}
