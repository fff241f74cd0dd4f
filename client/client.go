// Package client talks to a running teamsyncd over its gRPC API.
package client

import (
	"context"

	"github.com/frobware/go-teamsync"
)

// Client is the teamsyncd API.
type Client interface {
	// GetDump returns the raw teamd state dump of one bundle.
	GetDump(ctx context.Context, bundle string) (string, error)
	// GetDumps returns the dumps of every bundle that answered, keyed by
	// bundle name.
	GetDumps(ctx context.Context) (map[string]string, error)
	// ListBundles returns the tracked bundles in name order.
	ListBundles(ctx context.Context) ([]teamsync.BundleInfo, error)
	// AddChannel asks the daemon to open the teamd control channel of a
	// bundle. It reports whether the channel is connected; false means
	// the daemon keeps retrying.
	AddChannel(ctx context.Context, bundle string) (bool, error)
	// RemoveChannel closes the teamd control channel of a bundle.
	RemoveChannel(ctx context.Context, bundle string) error
	Close() error
}
