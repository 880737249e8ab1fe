package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultWorkers bounds the number of store lookups running at once.
const DefaultWorkers = 10

// ErrRowCountMismatch is returned by NewService when the mounted store does
// not hold the expected number of identifiers.
var ErrRowCountMismatch = errors.New("passage store row count mismatch")

// Lookup is the read path of the identifier store.
type Lookup interface {
	Validate(ctx context.Context, ids []string) ([]bool, error)
	RowCount(ctx context.Context) (int64, error)
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// ExpectedRows, when positive, must equal the store's row count.
	ExpectedRows int64

	// Workers is the size of the lookup pool. Zero means DefaultWorkers.
	Workers int

	// Registry receives the service metrics. A private registry is created
	// when nil.
	Registry *prometheus.Registry

	Logger *slog.Logger
}

type serviceMetrics struct {
	requests *prometheus.CounterVec
	ids      prometheus.Counter
	missing  prometheus.Counter
	latency  prometheus.Histogram
}

func newServiceMetrics(reg prometheus.Registerer) *serviceMetrics {
	factory := promauto.With(reg)
	return &serviceMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "runvalidator",
			Subsystem: "oracle",
			Name:      "requests_total",
			Help:      "ValidatePassages requests by outcome.",
		}, []string{"outcome"}),
		ids: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "runvalidator",
			Subsystem: "oracle",
			Name:      "ids_checked_total",
			Help:      "Passage identifiers looked up.",
		}),
		missing: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "runvalidator",
			Subsystem: "oracle",
			Name:      "ids_missing_total",
			Help:      "Passage identifiers not found in the store.",
		}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "runvalidator",
			Subsystem: "oracle",
			Name:      "request_duration_seconds",
			Help:      "ValidatePassages latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Service answers existence queries against a read-only store.
type Service struct {
	store    Lookup
	pool     *ants.Pool
	registry *prometheus.Registry
	metrics  *serviceMetrics
	logger   *slog.Logger
}

var _ PassageValidatorServer = (*Service)(nil)

// NewService checks the store cardinality and starts the lookup pool. A
// row count mismatch is fatal: a server must not start against the wrong
// store file.
func NewService(ctx context.Context, store Lookup, opts ServiceOptions) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.ExpectedRows > 0 {
		rows, err := store.RowCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("check row count: %w", err)
		}
		if rows != opts.ExpectedRows {
			return nil, fmt.Errorf("%w: store has %d rows, expected %d (invalid path?)", ErrRowCountMismatch, rows, opts.ExpectedRows)
		}
		logger.Info("passage store row count verified", "rows", rows)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(false),
		ants.WithPanicHandler(func(p any) {
			logger.Error("lookup worker panic recovered", "panic", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create lookup pool: %w", err)
	}

	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Service{
		store:    store,
		pool:     pool,
		registry: reg,
		metrics:  newServiceMetrics(reg),
		logger:   logger,
	}, nil
}

// Registry returns the registry holding the service metrics.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// ValidatePassages implements PassageValidatorServer.
func (s *Service) ValidatePassages(ctx context.Context, req *ValidationRequest) (*ValidationResult, error) {
	start := time.Now()
	defer func() { s.metrics.latency.Observe(time.Since(start).Seconds()) }()

	type outcome struct {
		valid []bool
		err   error
	}
	done := make(chan outcome, 1)

	err := s.pool.Submit(func() {
		valid, err := s.store.Validate(ctx, req.PassageIDs)
		done <- outcome{valid: valid, err: err}
	})
	if err != nil {
		s.metrics.requests.WithLabelValues("rejected").Inc()
		return nil, status.Errorf(codes.ResourceExhausted, "lookup pool: %v", err)
	}

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		s.metrics.requests.WithLabelValues("cancelled").Inc()
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	if out.err != nil {
		s.metrics.requests.WithLabelValues("error").Inc()
		s.logger.Error("passage lookup failed", "ids", len(req.PassageIDs), "error", out.err)
		return nil, status.Errorf(codes.Internal, "passage lookup: %v", out.err)
	}

	res := &ValidationResult{PassageValidations: make([]PassageValidation, len(out.valid))}
	missing := 0
	for i, ok := range out.valid {
		res.PassageValidations[i].IsValid = ok
		if !ok {
			missing++
		}
	}

	s.metrics.requests.WithLabelValues("ok").Inc()
	s.metrics.ids.Add(float64(len(req.PassageIDs)))
	s.metrics.missing.Add(float64(missing))
	s.logger.Debug("validated passages", "ids", len(req.PassageIDs), "missing", missing)
	return res, nil
}

// Close releases the lookup pool. The store is owned by the caller.
func (s *Service) Close() {
	s.pool.Release()
}
