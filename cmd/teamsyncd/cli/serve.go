package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/frobware/go-teamsync/daemon"
)

// ServeCmd runs the daemon.
type ServeCmd struct {
	TCPAddress string `name:"tcp-address" help:"Optional TCP address for the gRPC API, in addition to the runtime socket."`
}

// Run executes the serve command.
func (c *ServeCmd) Run(cli *CLI) error {
	logger, err := cli.LoggerFromConfig()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	appConfig, err := cli.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dirs, err := cli.RuntimeDirs()
	if err != nil {
		return fmt.Errorf("invalid runtime directory: %w", err)
	}

	cfg := daemon.RunConfig{
		Dirs:       dirs,
		Config:     appConfig,
		TCPAddress: c.TCPAddress,
		Logger:     logger,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return daemon.Run(ctx, cfg)
}
