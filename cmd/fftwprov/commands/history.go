package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/openfroyo/fftwprov/pkg/provision"
	"github.com/openfroyo/fftwprov/pkg/stores"
	"github.com/spf13/cobra"
)

// runDetail is the --json output of a single run.
type runDetail struct {
	Run       *stores.Run        `json:"run"`
	Steps     []*stores.Step     `json:"steps"`
	Artifacts []*stores.Artifact `json:"artifacts"`
}

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded provisioning runs",
		Long: `Show the provisioning runs recorded in the run ledger, newest first.

With a run ID the steps and artifacts of that run are shown.`,
		Example: `  fftwprov history --out-dir ./out
  fftwprov history --out-dir ./out --limit 5 --json
  fftwprov history --out-dir ./out 3f2a9c1e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, true)
			if err != nil {
				return err
			}
			defer s.close()

			if s.store == nil {
				return provision.NewConfigError("the run ledger is disabled", nil)
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				run, err := s.store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				steps, err := s.store.ListSteps(ctx, run.ID)
				if err != nil {
					return err
				}
				artifacts, err := s.store.ListArtifacts(ctx, run.ID)
				if err != nil {
					return err
				}

				detail := runDetail{Run: run, Steps: steps, Artifacts: artifacts}
				if jsonOutput {
					return writeJSON(out, detail)
				}
				printRunDetail(out, detail)
				return nil
			}

			runs, err := s.store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				if runs == nil {
					runs = []*stores.Run{}
				}
				return writeJSON(out, runs)
			}

			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}

			fmt.Fprintf(out, "%-36s  %-11s  %-8s  %-16s  %-25s  %s\n",
				"ID", "STATUS", "PLATFORM", "VERSION", "STARTED", "DURATION")
			for _, run := range runs {
				fmt.Fprintf(out, "%-36s  %-11s  %-8s  %-16s  %-25s  %s\n",
					run.ID, run.Status, run.Platform, run.Version,
					run.StartedAt.Local().Format(time.RFC3339), runDuration(run))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")

	return cmd
}

func printRunDetail(out io.Writer, d runDetail) {
	fmt.Fprintf(out, "Run:      %s\n", d.Run.ID)
	fmt.Fprintf(out, "Status:   %s\n", d.Run.Status)
	fmt.Fprintf(out, "Platform: %s (%s)\n", d.Run.Platform, d.Run.Target)
	fmt.Fprintf(out, "Version:  %s\n", d.Run.Version)
	fmt.Fprintf(out, "Source:   %s\n", d.Run.SourceURL)
	fmt.Fprintf(out, "Out dir:  %s\n", d.Run.OutDir)
	fmt.Fprintf(out, "Duration: %s\n", runDuration(d.Run))
	if d.Run.Error != nil {
		fmt.Fprintf(out, "Error:    %s\n", *d.Run.Error)
	}

	if len(d.Steps) > 0 {
		fmt.Fprintln(out, "\nSteps:")
		for _, step := range d.Steps {
			detail := step.Detail
			if step.Error != nil {
				detail = *step.Error
			}
			fmt.Fprintf(out, "  %-10s %-9s %10s  %s\n", step.Name, step.Status,
				step.CompletedAt.Sub(step.StartedAt).Round(time.Millisecond), detail)
		}
	}

	if len(d.Artifacts) > 0 {
		fmt.Fprintln(out, "\nArtifacts:")
		for _, a := range d.Artifacts {
			fmt.Fprintf(out, "  %s (%d bytes, sha256 %s)\n", a.Path, a.Size, a.SHA256)
		}
	}
}

func runDuration(run *stores.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
