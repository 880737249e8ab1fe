package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ikat-tools/runvalidator/internal/oracle"
	"github.com/ikat-tools/runvalidator/internal/passagedb"
)

// PassageCheck is the existence answer for one identifier.
type PassageCheck struct {
	ID     string `json:"id" yaml:"id"`
	Exists bool   `json:"exists" yaml:"exists"`
}

// CheckResult is the output of the check command.
type CheckResult struct {
	Passages []PassageCheck `json:"passages" yaml:"passages"`
	Missing  int            `json:"missing" yaml:"missing"`
}

func (r CheckResult) WriteText(w io.Writer) error {
	for _, p := range r.Passages {
		mark := "found"
		if !p.Exists {
			mark = "missing"
		}
		if _, err := fmt.Fprintf(w, "%-8s %s\n", mark, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <db-path> <passage-id>...",
		Short: "Look up passage identifiers in a local store",
		Long: `Report whether each passage identifier exists in the store, using the
same lookup path as the existence service. Exits 255 if any is missing.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], args[1:], cmd)
		},
	}
	rootOpts.bindFlags(cmd)
	return cmd
}

func runCheck(rootOpts *RootOptions, dbPath string, ids []string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)

	store, err := passagedb.OpenReadOnly(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open passage store", err)
	}
	defer store.Close()

	exists, err := oracle.StoreChecker{Store: store}.CheckExistence(cmd.Context(), ids)
	if err != nil {
		return WrapExitError(ExitFatal, "check passages", err)
	}

	res := CheckResult{Passages: make([]PassageCheck, len(ids))}
	for i, id := range ids {
		res.Passages[i] = PassageCheck{ID: id, Exists: exists[i]}
		if !exists[i] {
			res.Missing++
		}
	}
	if err := formatter.Success(res); err != nil {
		return err
	}
	if res.Missing > 0 {
		return NewExitError(ExitFatal, fmt.Sprintf("%d of %d passages missing", res.Missing, len(ids)))
	}
	return nil
}
