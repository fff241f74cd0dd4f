package client

import (
	"io"
	"log/slog"

	"github.com/frobware/go-teamsync/config"
)

// DefaultSocketPath returns the API socket of a daemon using the
// default runtime directories.
func DefaultSocketPath() string {
	return config.DefaultRuntimeDirs().SocketPath()
}

// Option configures Dial.
type Option func(*dialOptions)

type dialOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger for client operations.
// If not specified, a no-op logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *dialOptions) { o.logger = l }
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Dial connects to a teamsyncd at address, which is one of:
//   - "host:port" for TCP
//   - "unix:///path/to/socket"
//   - "/path/to/socket" (shorthand)
//
// The returned client must be closed when no longer needed.
func Dial(address string, opts ...Option) (Client, error) {
	o := &dialOptions{logger: discardLogger()}
	for _, opt := range opts {
		opt(o)
	}
	return newRemote(address, o.logger)
}
