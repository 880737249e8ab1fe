package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ikat-tools/runvalidator/internal/oracle"
	"github.com/ikat-tools/runvalidator/internal/passagedb"
	"github.com/ikat-tools/runvalidator/internal/run"
	"github.com/ikat-tools/runvalidator/internal/validate"
)

// ErrCodeGeneric is used for failures without a more specific code.
const ErrCodeGeneric = "E001"

// ValidateOptions are the resolved settings of the validate command.
type ValidateOptions struct {
	RunFile        string
	Fileroot       string
	Edition        string
	SkipPassages   bool
	MaxWarnings    int
	Timeout        time.Duration
	Addr           string
	DBPath         string
	PTKB           string
	ExpectedTopics int
	ExpectedTurns  int
	Cache          bool
}

// validateOutput renders a validation result as the summary report in text
// mode and as the result fields otherwise.
type validateOutput struct {
	validate.Result `yaml:",inline"`
	ErrLog          string `json:"errlog" yaml:"errlog"`
}

func (o validateOutput) WriteText(w io.Writer) error {
	if err := validate.WriteReport(w, o.Result); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nFull log: %s\n", o.ErrLog)
	return err
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <run-file>",
		Short: "Validate a run file against the test topics",
		Long: `Validate a run submission turn by turn.

Topics are read from <fileroot>/<edition>_test_topics.json. Unless
--skip-passage-validation is given, every cited passage is checked with the
existence service at --addr, or against a local store when --db is set.

Every finding is written to <run-file>.errlog. The command exits 255 on any
fatal condition, including exceeding --max-warnings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, readValidateOptions(rootOpts, cmd, args[0]), cmd)
		},
	}

	cmd.Flags().StringP("fileroot", "f", "../data", "directory holding the test topics file")
	cmd.Flags().String("edition", "2024", "test topics edition")
	cmd.Flags().BoolP("skip-passage-validation", "S", false, "skip passage existence checks")
	cmd.Flags().IntP("max-warnings", "m", validate.DefaultMaxWarnings, "maximum number of warnings to allow")
	cmd.Flags().DurationP("timeout", "t", oracle.DefaultTimeout, "timeout for each existence call")
	cmd.Flags().String("addr", oracle.DefaultTarget, "existence service address")
	cmd.Flags().String("db", "", "check passages against this local store instead of the service")
	cmd.Flags().String("ptkb", "strict", "PTKB provenance check (strict|permissive)")
	cmd.Flags().Int("expected-topics", run.DefaultExpectedTopics, "expected number of test topics")
	cmd.Flags().Int("expected-turns", run.DefaultExpectedTurns, "expected number of turns across all topics")
	cmd.Flags().Bool("cache", false, "cache existence answers across turns")
	rootOpts.bindFlags(cmd)

	return cmd
}

func readValidateOptions(o *RootOptions, cmd *cobra.Command, runFile string) ValidateOptions {
	v, k := o.v, func(name string) string { return o.key(cmd, name) }
	return ValidateOptions{
		RunFile:        runFile,
		Fileroot:       v.GetString(k("fileroot")),
		Edition:        v.GetString(k("edition")),
		SkipPassages:   v.GetBool(k("skip-passage-validation")),
		MaxWarnings:    v.GetInt(k("max-warnings")),
		Timeout:        v.GetDuration(k("timeout")),
		Addr:           v.GetString(k("addr")),
		DBPath:         v.GetString(k("db")),
		PTKB:           v.GetString(k("ptkb")),
		ExpectedTopics: v.GetInt(k("expected-topics")),
		ExpectedTurns:  v.GetInt(k("expected-turns")),
		Cache:          v.GetBool(k("cache")),
	}
}

func runValidate(rootOpts *RootOptions, opts ValidateOptions, cmd *cobra.Command) (err error) {
	formatter := rootOpts.formatter(cmd)

	cfg := validate.DefaultConfig()
	cfg.MaxWarnings = opts.MaxWarnings
	cfg.Timeout = opts.Timeout
	if cfg.PTKB, err = validate.PTKBCheckByName(opts.PTKB); err != nil {
		return WrapExitError(ExitCommandError, "invalid --ptkb", err)
	}

	errLogPath := opts.RunFile + ".errlog"
	errLog, err := os.Create(errLogPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "create error log", err)
	}
	defer func() {
		if closeErr := errLog.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "close error log", closeErr)
		}
	}()

	sessionID := uuid.Must(uuid.NewV7()).String()
	logger := rootOpts.newLogger(io.MultiWriter(formatter.GetErrWriter(), errLog)).With("session", sessionID)

	topicsPath := run.TopicFileName(opts.Fileroot, opts.Edition)
	topics, err := run.LoadTopics(topicsPath, run.TopicExpectations{Topics: opts.ExpectedTopics, Turns: opts.ExpectedTurns})
	if err != nil {
		return loadFailure(formatter, logger, "failed to load topics", err)
	}
	logger.Info("loaded test topics", "path", topicsPath, "topics", topics.Len(), "turns", topics.TotalTurns())

	r, err := run.LoadRun(opts.RunFile)
	if err != nil {
		return loadFailure(formatter, logger, "failed to load run", err)
	}
	logger.Info("loaded run", "path", opts.RunFile, "run_name", r.Name, "turns", len(r.Turns))

	checker, closeChecker, err := openChecker(opts, cfg)
	if err != nil {
		logger.Error("failed to set up passage validation", "error", err)
		return WrapExitError(ExitFatal, "set up passage validation", err)
	}
	defer closeChecker()
	if checker == nil {
		logger.Warn("passage validation disabled")
	}

	engine := validate.New(cfg, topics, checker, validate.NewDiagnostics(logger), validate.WithSessionID(sessionID))
	res, verr := engine.Validate(cmd.Context(), r)
	logger.Info(res.Summary())

	out := validateOutput{Result: res, ErrLog: errLogPath}
	if reportErr := validate.WriteReport(errLog, res); reportErr != nil {
		logger.Error("failed to write report", "error", reportErr)
	}

	if verr != nil {
		code := string(validate.FatalCode(verr))
		if code == "" {
			code = ErrCodeGeneric
		}
		if outErr := formatter.Error(code, verr.Error(), out); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFatal, "validation failed", verr)
	}
	return formatter.Success(out)
}

// openChecker picks the existence oracle for opts. The returned close
// function is always safe to call.
func openChecker(opts ValidateOptions, cfg validate.Config) (oracle.Checker, func(), error) {
	noop := func() {}
	if opts.SkipPassages {
		return nil, noop, nil
	}

	var checker oracle.Checker
	closeFn := noop
	if opts.DBPath != "" {
		store, err := passagedb.OpenReadOnly(opts.DBPath)
		if err != nil {
			return nil, noop, err
		}
		checker = oracle.StoreChecker{Store: store}
		closeFn = func() { store.Close() }
	} else {
		client, err := oracle.NewClient(opts.Addr, oracle.ClientOptions{Timeout: cfg.Timeout})
		if err != nil {
			return nil, noop, err
		}
		checker = client
		closeFn = func() { client.Close() }
	}

	if opts.Cache {
		checker = oracle.NewCachingChecker(checker, 0)
	}
	return checker, closeFn, nil
}

func loadFailure(formatter *OutputFormatter, logger *slog.Logger, message string, err error) error {
	logger.Error(message, "error", err)

	code := string(validate.ErrCodeLoad)
	var le *run.LoadError
	if errors.As(err, &le) {
		code = le.Code
	}
	if outErr := formatter.Error(code, err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFatal, message, err)
}
