package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// DefaultTimeout bounds a single existence call.
const DefaultTimeout = 3 * time.Second

// DefaultTarget is where the client looks for the service by default.
const DefaultTarget = "localhost:8000"

// Error classes returned by Client. Use errors.Is.
var (
	ErrUnreachable = errors.New("validation service unreachable")
	ErrTimeout     = errors.New("validation service timed out")
	ErrProtocol    = errors.New("validation service protocol error")
)

// ServiceError is a classified transport failure. Kind is one of
// ErrUnreachable, ErrTimeout or ErrProtocol.
type ServiceError struct {
	Kind error
	Code codes.Code
	Err  error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%v (code=%s): %v", e.Kind, e.Code, e.Err)
}

func (e *ServiceError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// IsServiceError reports whether err came from the transport.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Timeout applies to calls whose context has no deadline. Zero means
	// DefaultTimeout.
	Timeout time.Duration

	// DialOptions are appended to the defaults (insecure transport, JSON
	// codec).
	DialOptions []grpc.DialOption
}

// Client is the remote Checker. It never retries: a failed call is
// reported to the caller as a *ServiceError.
type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

var _ Checker = (*Client)(nil)

// NewClient prepares a connection to target. No network activity happens
// until the first call.
func NewClient(target string, opts ClientOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodecV2(jsonCodec{})),
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("create validation service client for %s: %w", target, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// CheckExistence sends ids in one request and returns the parallel result.
func (c *Client) CheckExistence(ctx context.Context, ids []string) ([]bool, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := &ValidationRequest{PassageIDs: ids}
	res := new(ValidationResult)
	if err := c.conn.Invoke(ctx, ValidatePassagesMethod, req, res, grpc.WaitForReady(false)); err != nil {
		return nil, classify(err)
	}

	if len(res.PassageValidations) != len(ids) {
		return nil, &ServiceError{
			Kind: ErrProtocol,
			Code: codes.Internal,
			Err:  fmt.Errorf("sent %d ids, received %d results", len(ids), len(res.PassageValidations)),
		}
	}
	out := make([]bool, len(ids))
	for i, v := range res.PassageValidations {
		out[i] = v.IsValid
	}
	return out, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func classify(err error) error {
	code := status.Code(err)
	switch {
	case code == codes.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded):
		return &ServiceError{Kind: ErrTimeout, Code: codes.DeadlineExceeded, Err: err}
	case code == codes.Internal || code == codes.Unimplemented || code == codes.InvalidArgument:
		return &ServiceError{Kind: ErrProtocol, Code: code, Err: err}
	default:
		return &ServiceError{Kind: ErrUnreachable, Code: code, Err: err}
	}
}
