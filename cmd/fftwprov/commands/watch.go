package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openfroyo/fftwprov/pkg/provision"
	"github.com/openfroyo/fftwprov/pkg/watch"
	"github.com/spf13/cobra"
)

var metricsAddr string

func newWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Provision again whenever the configuration changes",
		Long: `Provision once, then watch the config file, the build recipe and the policy
paths and provision again after each change. The configuration is reloaded
before every run; a configuration that fails to load or validate is reported and
the previous one stays in effect.

Runs stay idempotent: a run whose artifacts are already present does nothing.
Failed runs are logged and the watch continues. With --metrics-addr the
Prometheus metrics are served for the lifetime of the watch.`,
		Example: `  fftwprov watch --config fftwprov.yaml
  fftwprov watch --config fftwprov.cue --metrics-addr :9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := directiveFormat()
			if err != nil {
				return err
			}

			s, err := openSession(cmd, true)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()

			paths := s.cfg.WatchPaths(s.configPath)
			if len(paths) == 0 {
				return provision.NewConfigError("nothing to watch: set --config or FFTWPROV_CONFIG", nil)
			}

			if srv := s.telemetry.Metrics.NewServer(); srv != nil {
				go serveMetrics(ctx, s, srv)
			}

			watcher, err := watch.New(s.logger, debounce)
			if err != nil {
				return err
			}
			defer watcher.Close()

			for _, path := range paths {
				if err := watcher.Add(path); err != nil {
					return provision.NewConfigError("failed to watch "+path, err)
				}
			}

			run := func(ctx context.Context) error {
				defer func() {
					if err := s.telemetry.Flush(ctx); err != nil {
						s.logger.Warn().Err(err).Msg("Failed to flush telemetry")
					}
				}()
				if _, err := s.prov.Ensure(ctx); err != nil {
					return err
				}
				return s.prov.Emit(cmd.OutOrStdout(), f)
			}

			if err := run(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Initial provisioning run failed")
			}

			return watcher.Run(ctx, func(ctx context.Context, changed []string) error {
				if err := s.reload(cmd); err != nil {
					return err
				}
				s.logger.Info().Strs("changed", changed).Msg("Configuration reloaded")
				return run(ctx)
			})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period after a change before provisioning")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while watching")

	return cmd
}

func serveMetrics(ctx context.Context, s *session, srv *http.Server) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("address", srv.Addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error().Err(err).Msg("Metrics server failed")
	}
}
