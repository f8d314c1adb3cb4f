package commands

import (
	"github.com/openfroyo/fftwprov/pkg/provision"
	"github.com/spf13/cobra"
)

// provisionReport is the --json output of a provisioning run.
type provisionReport struct {
	Result *provision.Result  `json:"result"`
	Links  provision.LinkSpec `json:"links"`
}

func newProvisionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Provision the FFTW libraries and print link directives",
		Long: `Provision the FFTW libraries into the output directory, then print the link
directives for the build system on stdout.

Nothing is fetched or built when every artifact is already present. A failed
run prints no directives and exits non-zero.`,
		Example: `  # From a build script, with OUT_DIR and TARGET set by cargo
  fftwprov provision

  # Explicit output directory, cgo flags
  fftwprov provision --out-dir ./third_party/fftw --format cgo

  # Cross-provision the Windows import libraries
  fftwprov provision --target x86_64-pc-windows-msvc --out-dir ./out`,
		Args: cobra.NoArgs,
		RunE: runProvision,
	}
}

func runProvision(cmd *cobra.Command, args []string) error {
	f, err := directiveFormat()
	if err != nil {
		return err
	}

	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	defer s.close()

	result, err := s.prov.Ensure(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), provisionReport{Result: result, Links: s.prov.Links()})
	}
	return s.prov.Emit(cmd.OutOrStdout(), f)
}
