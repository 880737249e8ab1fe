package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ikat-tools/runvalidator/internal/oracle"
	"github.com/ikat-tools/runvalidator/internal/passagedb"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <db-path> [expected-rows]",
		Short: "Run the passage existence service",
		Long: `Serve passage existence checks over gRPC from a populated store.

expected-rows defaults to the size of the passage collection; the service
refuses to start when the store holds a different number of identifiers.
Pass 0 to skip the check.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, args, cmd)
		},
	}

	cmd.Flags().String("addr", oracle.DefaultAddr, "listen address")
	cmd.Flags().Int("workers", oracle.DefaultWorkers, "maximum concurrent store lookups")
	cmd.Flags().String("metrics-addr", "", "expose Prometheus metrics on this address")
	cmd.Flags().Int("max-msg-size", 0, "maximum gRPC message size in bytes (0 for the gRPC default)")
	rootOpts.bindFlags(cmd)

	return cmd
}

func runServe(rootOpts *RootOptions, args []string, cmd *cobra.Command) error {
	v, k := rootOpts.v, func(name string) string { return rootOpts.key(cmd, name) }
	logger := rootOpts.newLogger(cmd.ErrOrStderr())

	expected := int64(passagedb.PassageCount)
	if len(args) == 2 {
		n, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || n < 0 {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid expected-rows %q", args[1]), err)
		}
		expected = n
	}

	store, err := passagedb.OpenReadOnly(args[0])
	if err != nil {
		return WrapExitError(ExitCommandError, "open passage store", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := oracle.NewService(ctx, store, oracle.ServiceOptions{
		ExpectedRows: expected,
		Workers:      v.GetInt(k("workers")),
		Logger:       logger,
	})
	if err != nil {
		logger.Error("service failed to start", "db", args[0], "expected_rows", humanize.Comma(expected), "error", err)
		code := ExitCommandError
		if errors.Is(err, oracle.ErrRowCountMismatch) {
			code = ExitFatal
		}
		return WrapExitError(code, "start service", err)
	}
	defer svc.Close()

	msgSize := v.GetInt(k("max-msg-size"))
	server := oracle.NewServer(svc, oracle.ServerOptions{
		Addr:           v.GetString(k("addr")),
		MetricsAddr:    v.GetString(k("metrics-addr")),
		MaxRecvMsgSize: msgSize,
		MaxSendMsgSize: msgSize,
	})
	if err := server.ListenAndServe(ctx); err != nil {
		return WrapExitError(ExitFatal, "serve", err)
	}
	logger.Info("service stopped")
	return nil
}
