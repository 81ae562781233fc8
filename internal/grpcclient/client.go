package grpcclient

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/openbadge/bridge/internal/control"
	apperrors "github.com/openbadge/bridge/internal/errors"
	"github.com/openbadge/bridge/internal/orchestrator"
	"github.com/openbadge/bridge/internal/orchestrator/logbook"
	"github.com/openbadge/bridge/internal/resilience"
	"github.com/openbadge/bridge/internal/trace"
)

// Config holds client settings.
type Config struct {
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	CallTimeout      time.Duration
	Retry            resilience.RetryConfig
	Breaker          resilience.Config
}

// DefaultConfig returns the settings badgectl uses.
func DefaultConfig() Config {
	return Config{
		KeepaliveTime:    DefaultKeepaliveTime,
		KeepaliveTimeout: DefaultKeepaliveTimeout,
		CallTimeout:      DefaultCallTimeout,
		Retry:            resilience.DefaultRetryConfig(),
		Breaker:          resilience.ControlConfig(),
	}
}

// Client talks to a running bridge.
type Client struct {
	conn    *grpc.ClientConn
	cfg     Config
	breaker *resilience.Breaker
}

// New creates a client for addr. Extra dial options are appended to the
// defaults.
func New(addr string, cfg Config, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
	}
	conn, err := grpc.NewClient(addr, append(dialOpts, opts...)...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeUnavailable, "dial %s", addr)
	}
	// An open breaker fails every attempt the same way.
	retryable := cfg.Retry.IsRetryable
	if retryable == nil {
		retryable = resilience.IsRetryableGRPC
	}
	cfg.Retry.IsRetryable = func(err error) bool {
		return !errors.Is(err, resilience.ErrOpen) && retryable(err)
	}
	return &Client{conn: conn, cfg: cfg, breaker: resilience.New(cfg.Breaker)}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Status fetches the bridge snapshot.
func (c *Client) Status(ctx context.Context) (orchestrator.Snapshot, error) {
	var snap orchestrator.Snapshot
	out := new(structpb.Struct)
	if err := c.invoke(ctx, control.GetStatusMethod, &emptypb.Empty{}, out, true); err != nil {
		return snap, err
	}
	if err := control.FromStruct(out, &snap); err != nil {
		return snap, apperrors.Wrap(err, apperrors.CodeInternal, "decode status")
	}
	return snap, nil
}

// Trigger presses the badge button remotely. It is not retried: a press
// that timed out may still have been queued.
func (c *Client) Trigger(ctx context.Context) error {
	return c.invoke(ctx, control.TriggerMethod, &emptypb.Empty{}, new(emptypb.Empty), false)
}

// RecentLogs fetches logbook lines from the last seconds.
func (c *Client) RecentLogs(ctx context.Context, seconds int) ([]logbook.Entry, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, control.RecentLogsMethod, wrapperspb.Int32(int32(seconds)), out, true); err != nil {
		return nil, err
	}
	entries := make([]logbook.Entry, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		var e logbook.Entry
		if err := control.FromStruct(v.GetStructValue(), &e); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "decode log entry")
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// invoke runs one call behind the breaker, optionally with retries, and
// converts the failure back into an AppError.
func (c *Client) invoke(ctx context.Context, method string, in, out any, retry bool) error {
	if _, ok := ctx.Deadline(); !ok && c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	// Only transport-level failures count against the breaker; a refused
	// trigger is an answer, not an outage.
	call := func() error {
		var answer error
		err := c.breaker.Execute(func() error {
			err := c.conn.Invoke(ctx, method, in, out)
			if err != nil && !resilience.IsRetryableGRPC(err) {
				answer = err
				return nil
			}
			return err
		})
		if err != nil {
			return err
		}
		return answer
	}

	var err error
	if retry {
		err = resilience.Retry(ctx, c.cfg.Retry, call)
	} else {
		err = call()
	}
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, resilience.ErrOpen):
		return apperrors.Wrap(err, apperrors.CodeUnavailable, "bridge unreachable")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.CodeTimeout, "control call timed out")
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.CodeCancelled, "control call cancelled")
	}
	return apperrors.FromGRPCError(err)
}
