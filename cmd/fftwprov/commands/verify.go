package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Fetch the archive and check its digest",
		Long: `Fetch the configured archive and check it against the configured checksum
without writing, extracting or building anything.

When no checksum is configured the SHA-256 of the archive is printed so it can
be pinned.`,
		Example: `  # Check the default source tarball
  fftwprov verify

  # Print the digest of the Windows archive
  fftwprov verify --target x86_64-pc-windows-msvc --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			report, err := s.prov.Verify(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}

			status := "verified"
			if !report.Verified {
				status = "unverified"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s:%s %d bytes %s\n",
				status, report.Algorithm, report.Digest, report.Bytes, report.URL)
			return nil
		},
	}
}
