package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/store"
	"github.com/frobware/go-teamsync/teamdctl"
)

// channelObserver keeps the teamd control channels in step with the
// bundles the engine tracks.
type channelObserver struct {
	channels *teamdctl.Manager
	dumps    store.Table
	logger   *slog.Logger
}

func (o *channelObserver) BundleAdded(ctx context.Context, name string) {
	if !o.channels.AddLag(ctx, name) {
		o.logger.Debug("teamd channel queued", "lag", name)
	}
}

func (o *channelObserver) BundleRemoved(ctx context.Context, name string) {
	o.channels.RemoveLag(ctx, name)
	if err := o.dumps.Del(ctx, name); err != nil {
		o.logger.Warn("failed to delete dump", "lag", name, "error", err)
	}
}

// telemetry periodically retries queued channels and publishes the
// teamd state dumps to LAG_DUMP_TABLE.
type telemetry struct {
	channels *teamdctl.Manager
	dumps    store.Table
	interval time.Duration
	last     time.Time
	logger   *slog.Logger
}

// due reports whether a pass should run at now.
func (t *telemetry) due(now time.Time) bool {
	return t.last.IsZero() || now.Sub(t.last) >= t.interval
}

func (t *telemetry) run(ctx context.Context, now time.Time) {
	t.last = now
	t.channels.ProcessAddQueue(ctx)

	entries := t.channels.GetDumps(ctx, true)
	for _, e := range entries {
		if err := t.dumps.Set(ctx, e.Bundle, teamsync.FieldValues{{Field: teamsync.FieldDump, Value: e.Payload}}); err != nil {
			t.logger.Warn("failed to store dump", "lag", e.Bundle, "error", err)
		}
	}
	t.logger.Debug("telemetry pass", "dumps", len(entries), "pending", len(t.channels.PendingBundles()))
}
