// Package pb defines the TeamSync gRPC service.
//
// The service has no .proto of its own: every request and response is a
// protobuf well-known type, so the descriptors below are written by
// hand in the shape protoc-gen-go-grpc would produce.
package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "teamsync.v1.TeamSync"

const (
	TeamSync_GetDump_FullMethodName       = "/" + ServiceName + "/GetDump"
	TeamSync_GetDumps_FullMethodName      = "/" + ServiceName + "/GetDumps"
	TeamSync_ListBundles_FullMethodName   = "/" + ServiceName + "/ListBundles"
	TeamSync_AddChannel_FullMethodName    = "/" + ServiceName + "/AddChannel"
	TeamSync_RemoveChannel_FullMethodName = "/" + ServiceName + "/RemoveChannel"
)

// TeamSyncServer is the server API.
type TeamSyncServer interface {
	// GetDump returns the raw teamd state dump of one bundle.
	GetDump(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	// GetDumps returns bundle name -> dump for every bundle that
	// answered.
	GetDumps(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	// ListBundles returns one struct per tracked bundle.
	ListBundles(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	// AddChannel opens the teamd control channel of a bundle and
	// reports whether it is connected.
	AddChannel(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	// RemoveChannel closes the teamd control channel of a bundle.
	RemoveChannel(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

// UnimplementedTeamSyncServer answers every method with
// codes.Unimplemented.
type UnimplementedTeamSyncServer struct{}

func (UnimplementedTeamSyncServer) GetDump(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetDump not implemented")
}

func (UnimplementedTeamSyncServer) GetDumps(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetDumps not implemented")
}

func (UnimplementedTeamSyncServer) ListBundles(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method ListBundles not implemented")
}

func (UnimplementedTeamSyncServer) AddChannel(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method AddChannel not implemented")
}

func (UnimplementedTeamSyncServer) RemoveChannel(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method RemoveChannel not implemented")
}

// RegisterTeamSyncServer registers srv with s.
func RegisterTeamSyncServer(s grpc.ServiceRegistrar, srv TeamSyncServer) {
	s.RegisterService(&TeamSync_ServiceDesc, srv)
}

// unary builds the handler for one unary method.
func unary[Req any, Resp any](fullMethod string, call func(TeamSyncServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TeamSyncServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TeamSyncServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TeamSync_ServiceDesc is the grpc.ServiceDesc for the TeamSync service.
var TeamSync_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TeamSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetDump", Handler: unary(TeamSync_GetDump_FullMethodName, TeamSyncServer.GetDump)},
		{MethodName: "GetDumps", Handler: unary(TeamSync_GetDumps_FullMethodName, TeamSyncServer.GetDumps)},
		{MethodName: "ListBundles", Handler: unary(TeamSync_ListBundles_FullMethodName, TeamSyncServer.ListBundles)},
		{MethodName: "AddChannel", Handler: unary(TeamSync_AddChannel_FullMethodName, TeamSyncServer.AddChannel)},
		{MethodName: "RemoveChannel", Handler: unary(TeamSync_RemoveChannel_FullMethodName, TeamSyncServer.RemoveChannel)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "teamsync/v1/teamsync.proto",
}

// TeamSyncClient is the client API.
type TeamSyncClient interface {
	GetDump(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	GetDumps(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListBundles(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	AddChannel(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	RemoveChannel(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type teamSyncClient struct {
	cc grpc.ClientConnInterface
}

// NewTeamSyncClient returns a client over cc.
func NewTeamSyncClient(cc grpc.ClientConnInterface) TeamSyncClient {
	return &teamSyncClient{cc}
}

func (c *teamSyncClient) GetDump(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, TeamSync_GetDump_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *teamSyncClient) GetDumps(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, TeamSync_GetDumps_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *teamSyncClient) ListBundles(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, TeamSync_ListBundles_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *teamSyncClient) AddChannel(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, TeamSync_AddChannel_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *teamSyncClient) RemoveChannel(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, TeamSync_RemoveChannel_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
