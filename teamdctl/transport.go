package teamdctl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/logging"
)

// DefaultUnifiedSocket is where a unified teamd process listens.
const DefaultUnifiedSocket = "/var/run/teamd/teamd-unified.sock"

// DefaultTimeout bounds each send and receive on a teamd socket.
const DefaultTimeout = 5 * time.Second

// Transport sends one request and returns the raw response text.
type Transport interface {
	Send(ctx context.Context, method string, args ...string) (string, error)
}

// UnifiedTransport reaches a single teamd process that serves every
// bundle. Each request uses its own connection: connect, send, one
// receive, close.
type UnifiedTransport struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

var _ Transport = (*UnifiedTransport)(nil)

// NewUnifiedTransport returns a transport for the socket at path. An
// empty path means DefaultUnifiedSocket.
func NewUnifiedTransport(path string, logger *slog.Logger) *UnifiedTransport {
	if path == "" {
		path = DefaultUnifiedSocket
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UnifiedTransport{
		path:    path,
		timeout: DefaultTimeout,
		logger:  logger.With("component", "teamdctl", "socket", path),
	}
}

// minTimeout is the smallest socket timeout set. SO_RCVTIMEO rounds
// to microseconds and a zero value means no timeout at all.
const minTimeout = time.Millisecond

// requestTimeout bounds def by the ctx deadline. An expired deadline is
// an error; a positive remainder is never below minTimeout.
func requestTimeout(ctx context.Context, def time.Duration) (time.Duration, error) {
	timeout := def
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, context.DeadlineExceeded
		}
		timeout = min(timeout, remaining)
	}
	return max(timeout, minTimeout), nil
}

// Send delivers the request and returns the response unparsed. Every
// failure, including an empty response, wraps teamsync.ErrTransport.
func (t *UnifiedTransport) Send(ctx context.Context, method string, args ...string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", teamsync.ErrTransport, err)
	}
	timeout, err := requestTimeout(ctx, t.timeout)
	if err != nil {
		return "", fmt.Errorf("%w: %w", teamsync.ErrTransport, err)
	}

	conn, err := dialSeqpacket(t.path, timeout)
	if err != nil {
		return "", fmt.Errorf("%w: %w", teamsync.ErrTransport, err)
	}
	defer conn.Close()

	req := EncodeRequest(method, args...)
	t.logger.Log(ctx, logging.LevelTrace.ToSlog(), "sending request", "method", method, "args", args)
	if err := conn.Send(req); err != nil {
		t.logger.Error("failed to send request", "method", method, "error", err)
		return "", fmt.Errorf("%w: %w", teamsync.ErrTransport, err)
	}

	resp, err := conn.Recv()
	if err != nil {
		t.logger.Warn("no response from teamd", "method", method, "error", err)
		return "", fmt.Errorf("%w: %w", teamsync.ErrTransport, err)
	}
	t.logger.Log(ctx, logging.LevelTrace.ToSlog(), "received response", "method", method, "bytes", len(resp))
	return string(resp), nil
}
