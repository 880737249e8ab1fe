package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ikat-tools/runvalidator/internal/passagedb"
)

// PopulateSummary is the output of the populate command.
type PopulateSummary struct {
	DB       string `json:"db" yaml:"db"`
	Rows     int64  `json:"rows" yaml:"rows"`
	Batches  int64  `json:"batches" yaml:"batches"`
	Expected int64  `json:"expected" yaml:"expected"`
	Duration string `json:"duration" yaml:"duration"`
}

func (s PopulateSummary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Populated %s with %s identifiers in %s batches (%s)\n",
		s.DB, humanize.Comma(s.Rows), humanize.Comma(s.Batches), s.Duration)
	if err == nil && s.Expected > 0 && s.Rows != s.Expected {
		_, err = fmt.Fprintf(w, "Warning: expected %s identifiers\n", humanize.Comma(s.Expected))
	}
	return err
}

// NewPopulateCommand creates the populate command.
func NewPopulateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "populate <hash-file>",
		Short: "Build the passage identifier store from a hash file",
		Long: `Rebuild the passage identifier store from a tab-separated
"document_id, passage_index, hash" file.

Any existing identifiers in the store are dropped first. The store path
defaults to the hash file with a .sqlite3 extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPopulate(rootOpts, args[0], cmd)
		},
	}

	cmd.Flags().IntP("batch-size", "b", passagedb.DefaultBatchSize, "rows per transaction")
	cmd.Flags().String("db", "", "store path (default: <hash-file>.sqlite3)")
	cmd.Flags().Int64("expected", passagedb.PassageCount, "expected number of identifiers, for progress reporting")
	rootOpts.bindFlags(cmd)

	return cmd
}

func runPopulate(rootOpts *RootOptions, hashFile string, cmd *cobra.Command) error {
	v, k := rootOpts.v, func(name string) string { return rootOpts.key(cmd, name) }
	formatter := rootOpts.formatter(cmd)
	logger := rootOpts.newLogger(formatter.GetErrWriter())

	dbPath := v.GetString(k("db"))
	if dbPath == "" {
		dbPath = passagedb.DefaultPath(hashFile)
	}
	expected := v.GetInt64(k("expected"))

	f, err := os.Open(hashFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "open hash file", err)
	}
	defer f.Close()

	store, err := passagedb.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open passage store", err)
	}
	defer store.Close()

	logger.Info("populating passage store", "hash_file", hashFile, "db", dbPath)
	start := time.Now()
	res, err := store.Populate(cmd.Context(), f, passagedb.PopulateOptions{
		BatchSize: v.GetInt(k("batch-size")),
		Expected:  expected,
		Progress: func(inserted, expected int64) {
			attrs := []any{"inserted", humanize.Comma(inserted), "elapsed", time.Since(start).Round(time.Second)}
			if expected > 0 {
				attrs = append(attrs, "expected", humanize.Comma(expected),
					"done", fmt.Sprintf("%.1f%%", 100*float64(inserted)/float64(expected)))
			}
			logger.Debug("batch committed", attrs...)
		},
	})
	if err != nil {
		logger.Error("population failed", "error", err)
		return WrapExitError(ExitFatal, "populate passage store", err)
	}

	rows, err := store.RowCount(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFatal, "count stored identifiers", err)
	}
	if expected > 0 && rows != expected {
		logger.Warn("row count differs from expected", "rows", humanize.Comma(rows), "expected", humanize.Comma(expected))
	}
	logger.Info("population complete", "rows", humanize.Comma(rows), "duration", res.Duration.Round(time.Millisecond))

	return formatter.Success(PopulateSummary{
		DB:       store.Path(),
		Rows:     rows,
		Batches:  res.Batches,
		Expected: expected,
		Duration: res.Duration.Round(time.Millisecond).String(),
	})
}
