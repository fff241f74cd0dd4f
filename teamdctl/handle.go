package teamdctl

import (
	"context"
	"fmt"
	"path/filepath"
	"time"
)

// Handle is the control channel of one tracked bundle.
type Handle interface {
	// Dump returns the raw teamd state of the bundle.
	Dump(ctx context.Context) (string, error)
	// Release tears the channel down. It is safe to call more than
	// once.
	Release() error
}

// Client is a per-bundle teamd connection used in direct mode.
type Client interface {
	Connect(ctx context.Context) error
	StateDump(ctx context.Context) (string, error)
	Close() error
}

// ClientFactory allocates direct-mode clients.
type ClientFactory interface {
	NewClient(bundle string) (Client, error)
}

// directHandle owns a connected Client.
type directHandle struct {
	client Client
}

func (h *directHandle) Dump(ctx context.Context) (string, error) {
	return h.client.StateDump(ctx)
}

func (h *directHandle) Release() error {
	if h.client == nil {
		return nil
	}
	err := h.client.Close()
	h.client = nil
	return err
}

// unifiedHandle routes requests for one bundle through the shared
// transport. It holds nothing of its own.
type unifiedHandle struct {
	bundle    string
	transport Transport
}

func (h *unifiedHandle) Dump(ctx context.Context) (string, error) {
	resp, err := h.transport.Send(ctx, MethodStateDump, h.bundle)
	if err != nil {
		return "", err
	}
	return trimBanner(resp), nil
}

func (h *unifiedHandle) Release() error { return nil }

// DefaultRunDir holds the per-bundle teamd control sockets.
const DefaultRunDir = "/var/run/teamd"

// UsockFactory creates clients for the per-bundle teamd sockets
// <RunDir>/<bundle>.sock.
type UsockFactory struct {
	RunDir  string
	Timeout time.Duration
}

var _ ClientFactory = UsockFactory{}

func (f UsockFactory) NewClient(bundle string) (Client, error) {
	if bundle == "" || filepath.Base(bundle) != bundle {
		return nil, fmt.Errorf("invalid bundle name %q", bundle)
	}
	dir := f.RunDir
	if dir == "" {
		dir = DefaultRunDir
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &usockClient{path: filepath.Join(dir, bundle+".sock"), timeout: timeout}, nil
}

// usockClient keeps one connection to a teamd instance open and issues
// requests over it.
type usockClient struct {
	path    string
	timeout time.Duration
	conn    *seqpacketConn
}

func (c *usockClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := dialSeqpacket(c.path, c.timeout)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

func (c *usockClient) StateDump(ctx context.Context) (string, error) {
	if c.conn == nil {
		return "", fmt.Errorf("%s: not connected", c.path)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.conn.Send(EncodeRequest(MethodStateDump)); err != nil {
		return "", err
	}
	msg, err := c.conn.Recv()
	if err != nil {
		return "", err
	}
	return DecodeReply(msg)
}

func (c *usockClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
