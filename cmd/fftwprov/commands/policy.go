package commands

import (
	"fmt"
	"strings"

	"github.com/openfroyo/fftwprov/pkg/provision"
	"github.com/spf13/cobra"
)

func newPolicyCommand() *cobra.Command {
	var list bool
	var show string

	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Evaluate the source policy",
		Long: `Evaluate the source policy for the configured archive and print every
violation. Nothing is fetched. The command fails when a violation would abort
a provisioning run.

Built-in policies:
  source-integrity  a checksum is required for tarballs, and for the Windows
                    archive in strict mode
  source-transport  plain http and ftp are reported
  source-scheme     only http, https, ftp, sftp and file URLs are accepted

Extra .rego or .json policies are loaded from the policies config list.
Policies can be switched with the enabled_policies and disabled_policies
config lists.`,
		Example: `  fftwprov policy
  fftwprov policy --target x86_64-pc-windows-msvc --json
  fftwprov policy --list
  fftwprov policy --show source-transport`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			out := cmd.OutOrStdout()

			if show != "" {
				p, err := s.policy.GetPolicy(show)
				if err != nil {
					return provision.NewConfigError("unknown policy", err)
				}
				if jsonOutput {
					return writeJSON(out, p)
				}
				fmt.Fprintf(out, "name:        %s\n", p.Name)
				fmt.Fprintf(out, "severity:    %s\n", p.Severity)
				fmt.Fprintf(out, "enabled:     %t\n", p.Enabled)
				fmt.Fprintf(out, "description: %s\n", p.Description)
				if len(p.Tags) > 0 {
					fmt.Fprintf(out, "tags:        %s\n", strings.Join(p.Tags, ", "))
				}
				if source, ok := p.Metadata["source"].(string); ok {
					fmt.Fprintf(out, "source:      %s\n", source)
				}
				fmt.Fprintf(out, "\n%s\n", strings.TrimRight(p.Rego, "\n"))
				return nil
			}

			if list {
				policies := s.policy.ListPolicies()
				if jsonOutput {
					return writeJSON(out, policies)
				}
				fmt.Fprintf(out, "%-20s  %-8s  %-7s  %s\n", "NAME", "SEVERITY", "ENABLED", "DESCRIPTION")
				for _, p := range policies {
					fmt.Fprintf(out, "%-20s  %-8s  %-7t  %s\n", p.Name, p.Severity, p.Enabled, p.Description)
				}
				return nil
			}

			result, err := s.prov.EvaluatePolicy(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(out, result); err != nil {
					return err
				}
			} else {
				input := s.prov.PolicyInput()
				fmt.Fprintf(out, "source %s (%s, checksum %t)\n", input.Source.URL, input.Platform, input.Checksum.Present)
				for _, v := range result.Violations {
					fmt.Fprintf(out, "  [%s] %s: %s\n", v.Severity, v.Policy, v.Message)
					if v.Remediation != "" {
						fmt.Fprintf(out, "      %s\n", v.Remediation)
					}
				}
				if len(result.Violations) == 0 {
					fmt.Fprintln(out, "  no violations")
				}
			}

			if blocking := result.Blocking(); len(blocking) > 0 {
				names := make([]string, len(blocking))
				for i, v := range blocking {
					names[i] = v.Policy
				}
				return provision.NewPolicyError(fmt.Sprintf("source rejected by %s", strings.Join(names, ", ")))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list loaded policies instead of evaluating them")
	cmd.Flags().StringVar(&show, "show", "", "print the named policy and its Rego source")
	cmd.MarkFlagsMutuallyExclusive("list", "show")

	return cmd
}
