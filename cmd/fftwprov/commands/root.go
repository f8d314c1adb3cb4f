package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	outDir     string
	target     string
	jobs       int
	format     string
	logLevel   string
	jsonOutput bool

	buildVersion string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "fftwprov",
		Short: "fftwprov - FFTW native dependency provisioner",
		Long: `fftwprov makes the FFTW3 libraries available to a build and prints the
directives that tell the build system how to link them.

On Unix it downloads the source tarball, verifies its digest and builds the
single and double precision static libraries. On Windows it fetches the
prebuilt DLL archive and synthesises MSVC import libraries from the .def files.
Runs are idempotent: when every artifact already exists nothing is fetched or
built.

Without a subcommand fftwprov provisions and then prints the link directives.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runProvision,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (.yaml, .yml or .cue; default $FFTWPROV_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&outDir, "out-dir", "o", "", "output directory (default $OUT_DIR)")
	rootCmd.PersistentFlags().StringVar(&target, "target", "", "target triple (default $TARGET or the host)")
	rootCmd.PersistentFlags().IntVarP(&jobs, "jobs", "j", 0, "make parallelism (default $NUM_JOBS or the CPU count)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "cargo", "directive format: cargo, cgo or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newProvisionCommand())
	rootCmd.AddCommand(newLinksCommand())
	rootCmd.AddCommand(newVerifyCommand())
	rootCmd.AddCommand(newPolicyCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
