package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ikat-tools/runvalidator/internal/run"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-file>",
		Short: "Convert a run file to TREC run format",
		Long: `Write the passage ranking of a run in six-column TREC format:
turn_id Q0 passage_id rank score run_name.

Passages cited by several responses of a turn are listed once, with their
highest score.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, args[0], cmd)
		},
	}

	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	rootOpts.bindFlags(cmd)

	return cmd
}

func runExport(rootOpts *RootOptions, runFile string, cmd *cobra.Command) (err error) {
	formatter := rootOpts.formatter(cmd)

	r, err := run.LoadRun(runFile)
	if err != nil {
		return loadFailure(formatter, rootOpts.newLogger(formatter.GetErrWriter()), "failed to load run", err)
	}

	out := cmd.OutOrStdout()
	if path := rootOpts.v.GetString(rootOpts.key(cmd, "output")); path != "" {
		f, createErr := os.Create(path)
		if createErr != nil {
			return WrapExitError(ExitCommandError, "create output file", createErr)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = WrapExitError(ExitCommandError, "close output file", closeErr)
			}
		}()
		out = f
	}

	if err := run.WriteTREC(out, r); err != nil {
		return WrapExitError(ExitCommandError, "write TREC run", err)
	}
	formatter.VerboseLog("Exported %d turns from %s", len(r.Turns), runFile)
	return nil
}
