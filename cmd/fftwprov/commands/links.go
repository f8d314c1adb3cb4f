package commands

import (
	"github.com/openfroyo/fftwprov/pkg/provision"
	"github.com/spf13/cobra"
)

func newLinksCommand() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "links",
		Short: "Print link directives without provisioning",
		Long: `Print the link directives for the configured platform and output directory.
Nothing is fetched or built. With --check the command fails when an artifact
is missing.`,
		Example: `  fftwprov links --out-dir ./out
  fftwprov links --out-dir ./out --format json
  fftwprov links --out-dir ./out --check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := directiveFormat()
			if err != nil {
				return err
			}
			if jsonOutput {
				f = provision.FormatJSON
			}

			s, err := openSession(cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			if check {
				opts := s.prov.Options()
				for _, path := range provision.Artifacts(opts.EffectivePlatform(), opts.OutDir) {
					if !fileExists(path) {
						return provision.NewFilesystemError(provision.StepProbe, "artifact missing: "+path, nil)
					}
				}
			}

			return s.prov.Emit(cmd.OutOrStdout(), f)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "fail when an artifact is missing")

	return cmd
}
