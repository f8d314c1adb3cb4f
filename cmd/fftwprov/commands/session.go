package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/openfroyo/fftwprov/pkg/config"
	"github.com/openfroyo/fftwprov/pkg/fetch"
	"github.com/openfroyo/fftwprov/pkg/policy"
	"github.com/openfroyo/fftwprov/pkg/provision"
	"github.com/openfroyo/fftwprov/pkg/stores"
	"github.com/openfroyo/fftwprov/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

// session holds everything one command invocation needs.
type session struct {
	loader     *config.Loader
	configPath string
	cfg        *config.Config
	telemetry  *telemetry.Telemetry
	store      *stores.SQLiteStore
	policy     *policy.Engine
	prov       *provision.Provisioner
	logger     zerolog.Logger
}

// openSession loads and validates the configuration, starts telemetry, opens the run
// ledger when withLedger is set and builds the provisioner.
func openSession(cmd *cobra.Command, withLedger bool) (*session, error) {
	ctx := cmd.Context()
	s := &session{loader: config.NewLoader()}
	s.configPath = s.loader.ConfigPath(configPath)

	cfg, err := s.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg

	tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig(buildVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.telemetry = tel
	s.logger = tel.Logger.NewComponentLogger("cli").Zerolog()

	if withLedger {
		if err := s.openLedger(ctx); err != nil {
			s.close()
			return nil, err
		}
	}

	if err := s.build(ctx); err != nil {
		s.close()
		return nil, err
	}

	return s, nil
}

// loadConfig layers defaults, the config file, the environment and the flags that
// were set on the command line, then validates the result.
func (s *session) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := s.loader.Load(s.configPath)
	if err != nil {
		return nil, provision.NewConfigError("failed to load configuration", err)
	}

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if err := s.loader.Validate(cmd.Context(), cfg); err != nil {
		return nil, provision.NewConfigError("configuration rejected", err)
	}

	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("out-dir") {
		abs, err := filepath.Abs(outDir)
		if err != nil {
			return provision.NewConfigError("invalid output directory", err)
		}
		cfg.OutDir = abs
	}
	if flags.Changed("target") {
		cfg.Target = target
	}
	if flags.Changed("jobs") {
		cfg.Jobs = jobs
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.ListenAddress = metricsAddr
	}

	return nil
}

func (s *session) openLedger(ctx context.Context) error {
	path := s.cfg.LedgerPath()
	if path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return provision.NewFilesystemError(provision.StepProbe, "failed to create ledger directory", err)
	}

	store, err := stores.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to open run ledger %s: %w", path, err)
	}
	s.store = store

	s.logger.Debug().Str("path", path).Msg("Run ledger opened")
	return nil
}

// build loads the configured policies into the session's engine, creating it on
// first use, and builds the provisioner for the current config.
func (s *session) build(ctx context.Context) error {
	if s.policy == nil {
		engine, err := policy.NewEngine(s.telemetry.Logger.Zerolog())
		if err != nil {
			return err
		}
		s.policy = engine
		if len(s.cfg.Policies) > 0 {
			if err := engine.LoadPolicies(ctx, s.cfg.Policies); err != nil {
				return provision.NewConfigError("failed to load policies", err)
			}
		}
	} else if err := s.policy.ReloadPolicies(ctx, s.cfg.Policies); err != nil {
		return provision.NewConfigError("failed to reload policies", err)
	}

	if err := s.togglePolicies(); err != nil {
		return err
	}

	opts, err := s.cfg.Options(s.loader.SchemaRegistry(), s.logger)
	if err != nil {
		return err
	}

	deps := provision.Dependencies{
		Fetcher:   fetch.NewDefaultRegistry(s.cfg.FetchOptions()),
		Policy:    s.policy,
		Telemetry: s.telemetry,
	}
	if s.store != nil {
		deps.Store = s.store
	}

	s.prov = provision.New(opts, deps)
	return nil
}

// togglePolicies applies enabled_policies, then disabled_policies.
func (s *session) togglePolicies() error {
	for _, name := range s.cfg.EnabledPolicies {
		if err := s.policy.EnablePolicy(name); err != nil {
			return provision.NewConfigError("invalid enabled_policies entry", err)
		}
	}
	for _, name := range s.cfg.DisabledPolicies {
		if err := s.policy.DisablePolicy(name); err != nil {
			return provision.NewConfigError("invalid disabled_policies entry", err)
		}
	}
	return nil
}

// reload re-reads the configuration, reloads the policy engine in place and rebuilds
// the provisioner. Telemetry and the ledger stay open. On failure the previous
// configuration and its policies stay in effect.
func (s *session) reload(cmd *cobra.Command) error {
	cfg, err := s.loadConfig(cmd)
	if err != nil {
		return err
	}

	prev := s.cfg
	s.cfg = cfg
	if err := s.build(cmd.Context()); err != nil {
		s.cfg = prev
		if restoreErr := s.build(cmd.Context()); restoreErr != nil {
			s.logger.Error().Err(restoreErr).Msg("Failed to restore previous policies")
		}
		return err
	}
	return nil
}

// close flushes telemetry and closes the ledger, logging failures.
func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.telemetry != nil {
		errs = append(errs, s.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to shut down cleanly")
	}
}

func directiveFormat() (provision.Format, error) {
	f, err := provision.ParseFormat(format)
	if err != nil {
		return "", provision.NewConfigError("invalid --format", err)
	}
	return f, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
