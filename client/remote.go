package client

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/frobware/go-teamsync"
	"github.com/frobware/go-teamsync/server/pb"
)

// remoteClient translates between domain types and the well-known
// protobuf messages of the TeamSync service.
type remoteClient struct {
	client pb.TeamSyncClient
	conn   *grpc.ClientConn
	logger *slog.Logger
}

func newRemote(address string, logger *slog.Logger) (Client, error) {
	target := parseAddress(address)

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", target, err)
	}

	return &remoteClient{
		client: pb.NewTeamSyncClient(conn),
		conn:   conn,
		logger: logger,
	}, nil
}

// parseAddress normalises an address for gRPC.
func parseAddress(address string) string {
	if strings.HasPrefix(address, "unix://") {
		return address
	}
	if strings.HasPrefix(address, "/") {
		return "unix://" + address
	}
	return address
}

func (c *remoteClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *remoteClient) GetDump(ctx context.Context, bundle string) (string, error) {
	resp, err := c.client.GetDump(ctx, wrapperspb.String(bundle))
	if err != nil {
		return "", fmt.Errorf("get dump %s: %w", bundle, err)
	}
	return resp.GetValue(), nil
}

func (c *remoteClient) GetDumps(ctx context.Context) (map[string]string, error) {
	resp, err := c.client.GetDumps(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fmt.Errorf("get dumps: %w", err)
	}
	out := make(map[string]string, len(resp.GetFields()))
	for name, v := range resp.GetFields() {
		out[name] = v.GetStringValue()
	}
	return out, nil
}

func (c *remoteClient) ListBundles(ctx context.Context) ([]teamsync.BundleInfo, error) {
	resp, err := c.client.ListBundles(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	bundles := make([]teamsync.BundleInfo, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		b, err := bundleFromStruct(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, b)
	}
	slices.SortFunc(bundles, func(a, b teamsync.BundleInfo) int { return strings.Compare(a.Name, b.Name) })
	return bundles, nil
}

func (c *remoteClient) AddChannel(ctx context.Context, bundle string) (bool, error) {
	resp, err := c.client.AddChannel(ctx, wrapperspb.String(bundle))
	if err != nil {
		return false, fmt.Errorf("add channel %s: %w", bundle, err)
	}
	return resp.GetValue(), nil
}

func (c *remoteClient) RemoveChannel(ctx context.Context, bundle string) error {
	if _, err := c.client.RemoveChannel(ctx, wrapperspb.String(bundle)); err != nil {
		return fmt.Errorf("remove channel %s: %w", bundle, err)
	}
	return nil
}

// SortedNames returns the keys of a GetDumps result in order.
func SortedNames(dumps map[string]string) []string {
	return slices.Sorted(maps.Keys(dumps))
}
