package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/frobware/go-teamsync/config"
	"github.com/frobware/go-teamsync/kernel/linkfeed"
	"github.com/frobware/go-teamsync/kernel/teamgenl"
	"github.com/frobware/go-teamsync/linksync"
	"github.com/frobware/go-teamsync/lock"
	"github.com/frobware/go-teamsync/server"
	"github.com/frobware/go-teamsync/teamdctl"
	"github.com/frobware/go-teamsync/warmrestart"
)

// RunConfig configures the teamsyncd daemon.
type RunConfig struct {
	Dirs   config.RuntimeDirs
	Config config.Config
	// TCPAddress optionally exposes the API on TCP as well as the
	// runtime socket.
	TCPAddress string
	Logger     *slog.Logger
}

// Run starts teamsyncd and blocks until ctx is cancelled. Only one
// instance runs per runtime directory.
func Run(ctx context.Context, cfg RunConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Dirs.EnsureDirectories(); err != nil {
		return fmt.Errorf("runtime directory setup failed: %w", err)
	}
	return lock.Run(ctx, cfg.Dirs.Lock(), func(ctx context.Context, owner lock.Owner) error {
		logger.Debug("holding instance lock", "path", owner.Path())
		return run(ctx, cfg, logger)
	})
}

func run(ctx context.Context, cfg RunConfig, logger *slog.Logger) error {
	st, err := OpenStore(ctx, cfg.Config.Store, cfg.Dirs, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	channels, err := newChannels(cfg.Config.Teamd, logger)
	if err != nil {
		return err
	}

	warm := warmrestart.New(st, warmrestart.Options{
		ForceEnabled: cfg.Config.WarmRestart.Enabled,
		Logger:       logger,
	})

	d, err := New(ctx, Options{
		Store:              st,
		Driver:             teamgenl.New(logger),
		WarmRestart:        warm,
		WarmRestartTimeout: cfg.Config.WarmRestart.Timer,
		Channels:           channels,
		TickInterval:       cfg.Config.Sync.TickInterval,
		DumpInterval:       cfg.Config.Sync.DumpInterval,
		Logger:             logger,
	})
	if err != nil {
		return err
	}
	defer d.Close()

	feed, err := linkfeed.Subscribe(d.OnLinkEvent, d.TrackedBundles, logger)
	if err != nil {
		return err
	}
	defer feed.Close()
	if err := d.AddSource(feed); err != nil {
		return err
	}
	if err := feed.Dump(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := server.New(d, logger)
	srvErr := make(chan error, 1)
	go func() {
		err := srv.Serve(ctx, cfg.Dirs.SocketPath(), cfg.TCPAddress)
		if err != nil {
			logger.Error("API server failed, stopping", "error", err)
			cancel()
		}
		srvErr <- err
	}()

	loopErr := d.Loop(ctx)
	cancel()
	return errors.Join(loopErr, <-srvErr)
}

func newChannels(cfg config.TeamdConfig, logger *slog.Logger) (*teamdctl.Manager, error) {
	if cfg.UnifiedMode {
		return teamdctl.New(teamdctl.Options{
			Mode:      teamdctl.ModeUnified,
			Transport: teamdctl.NewUnifiedTransport(cfg.UnifiedSocket, logger),
			Logger:    logger,
		})
	}
	return teamdctl.New(teamdctl.Options{
		Mode:    teamdctl.ModeDirect,
		Clients: teamdctl.UsockFactory{RunDir: cfg.RunDir},
		Logger:  logger,
	})
}

var _ linksync.Observer = (*channelObserver)(nil)
