package linkfeed

import (
	"io"
	"log/slog"
	"os"
)

func testLogger() *slog.Logger {
	if os.Getenv("TEAMSYNC_TEST_LOG") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(-8)}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
